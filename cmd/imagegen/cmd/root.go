// Package cmd builds the imagegen command tree: run a beam-search session,
// inspect a finished session's metadata, or learn why resume is
// unsupported.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "imagegen",
	Short: "Iterative beam-search image generation pipeline",
	Long: `imagegen drives a beam-search loop that repeatedly generates
candidate images, ranks them with a vision model ensemble, and refines
surviving prompts along alternating "what" and "how" dimensions until a
winning image is selected.`,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(inspectSessionCmd)
}
