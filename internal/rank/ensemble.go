package rank

import (
	"context"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
)

// EnsembleVoter invokes a PairwiseRanker's debiased comparison n times
// sequentially (GPU services are serial) and folds the votes into one
// AggregateVerdict (spec §4.3, C4).
type EnsembleVoter struct {
	ranker *PairwiseRanker
}

// NewEnsembleVoter builds an EnsembleVoter over ranker.
func NewEnsembleVoter(ranker *PairwiseRanker) *EnsembleVoter {
	return &EnsembleVoter{ranker: ranker}
}

// CompareEnsemble runs n sequential debiased comparisons and aggregates
// them. n must be >= 1.
func (e *EnsembleVoter) CompareEnsemble(ctx context.Context, aRef, bRef, prompt string, n int) (*AggregateVerdict, error) {
	votesA, votesB, votesTie := 0, 0, 0
	var sumAlignA, sumAestheticsA, sumAlignB, sumAestheticsB float64

	strengthsBySide := map[collaborator.Choice][]string{}
	weaknessesBySide := map[collaborator.Choice][]string{}
	var lastSuggestion string

	for i := 0; i < n; i++ {
		cmp, err := e.ranker.CompareDebiased(ctx, aRef, bRef, prompt)
		if err != nil {
			return nil, err
		}
		v := cmp.Verdict

		sumAlignA += v.RankA.Alignment
		sumAestheticsA += v.RankA.Aesthetics
		sumAlignB += v.RankB.Alignment
		sumAestheticsB += v.RankB.Aesthetics

		switch v.Choice {
		case collaborator.ChoiceA:
			votesA++
		case collaborator.ChoiceB:
			votesB++
		case collaborator.ChoiceTie:
			votesTie++
		}

		// Strength/weakness bucketing still needs a side even for a raw
		// TIE vote; that bucketing choice is independent of the
		// majority tally above, which excludes ties from both sides.
		winnerSide := v.Choice
		if winnerSide == collaborator.ChoiceTie {
			winnerSide = collaborator.ChoiceA
		}
		loserSide := collaborator.ChoiceB
		if winnerSide == collaborator.ChoiceB {
			loserSide = collaborator.ChoiceA
		}

		strengthsBySide[winnerSide] = appendDedup(strengthsBySide[winnerSide], v.WinnerStrengths)
		weaknessesBySide[loserSide] = appendDedup(weaknessesBySide[loserSide], v.LoserWeaknesses)

		if v.ImprovementSuggestion != "" {
			lastSuggestion = v.ImprovementSuggestion
		}
	}

	// Majority is decided by non-TIE votes only; votesA + votesB + votesTie
	// == n, but votesTie never counts toward either side here.
	choice := collaborator.ChoiceTie
	if votesA > votesB {
		choice = collaborator.ChoiceA
	} else if votesB > votesA {
		choice = collaborator.ChoiceB
	}

	confidence := float64(votesA) / float64(n)
	if votesB > votesA {
		confidence = float64(votesB) / float64(n)
	}

	rankA := collaborator.Rank{Alignment: sumAlignA / float64(n), Aesthetics: sumAestheticsA / float64(n)}
	rankB := collaborator.Rank{Alignment: sumAlignB / float64(n), Aesthetics: sumAestheticsB / float64(n)}

	overallWinnerSide := choice
	if overallWinnerSide == collaborator.ChoiceTie {
		overallWinnerSide = collaborator.ChoiceA
	}
	overallLoserSide := collaborator.ChoiceB
	if overallWinnerSide == collaborator.ChoiceB {
		overallLoserSide = collaborator.ChoiceA
	}

	return &AggregateVerdict{
		Choice:                choice,
		Confidence:            confidence,
		RankA:                 rankA,
		RankB:                 rankB,
		CombinedA:             e.ranker.combined(rankA),
		CombinedB:             e.ranker.combined(rankB),
		WinnerStrengths:       strengthsBySide[overallWinnerSide],
		LoserWeaknesses:       weaknessesBySide[overallLoserSide],
		ImprovementSuggestion: lastSuggestion,
	}, nil
}

func appendDedup(existing []string, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	out := existing
	for _, s := range add {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
