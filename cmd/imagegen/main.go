package main

import (
	"fmt"
	"os"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/cmd/imagegen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
