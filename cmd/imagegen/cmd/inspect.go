package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/metadata"
)

var inspectSessionCmd = &cobra.Command{
	Use:   "inspect-session METADATA_JSON_PATH",
	Short: "Pretty-print a session's iteration/candidate tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectSession,
}

func runInspectSession(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read metadata file: %w", err)
	}

	var rec metadata.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse metadata file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s (prompt: %q)\n", rec.SessionID, rec.UserPrompt)
	for _, iter := range rec.Iterations {
		best := "-"
		if iter.BestCandidateIndex != nil {
			best = fmt.Sprintf("%d", *iter.BestCandidateIndex)
		}
		fmt.Fprintf(out, "iteration %d (%s), best=%s\n", iter.IterationIndex, iter.DimensionRefined, best)
		for _, c := range iter.Candidates {
			survived := ""
			if c.Survived {
				survived = " survived"
			}
			score := "-"
			if c.TotalScore != nil {
				score = fmt.Sprintf("%.3f", *c.TotalScore)
			}
			fmt.Fprintf(out, "  candidate %d: status=%s score=%s%s\n", c.CandidateIndex, c.Status, score, survived)
		}
	}

	if rec.FinalWinner != nil {
		fmt.Fprintf(out, "winner: iteration=%d candidate=%d\n", rec.FinalWinner.Iteration, rec.FinalWinner.CandidateIndex)
		fmt.Fprint(out, "lineage: ")
		for i, l := range rec.Lineage {
			if i > 0 {
				fmt.Fprint(out, " -> ")
			}
			fmt.Fprintf(out, "(%d,%d)", l.Iteration, l.CandidateIndex)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "winner: none (session incomplete)")
	}

	return nil
}
