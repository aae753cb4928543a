package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume SESSION_ID",
	Short: "Resume an interrupted session (unsupported)",
	Long: `resume is surfaced as a command so the intent is discoverable, but
persistent cross-session history is explicitly out of scope: a session's
metadata.json records what happened, not enough state to safely re-enter a
beam-search loop mid-iteration (in-flight candidate generations, ensemble
votes, and survivor selection are not checkpointed). Start a new session
with "imagegen run" instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("resume is not supported: sessions are not checkpointed mid-iteration; start a new session with 'imagegen run'")
	},
}
