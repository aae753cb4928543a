package rank

import (
	"context"
	"sort"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/graph"
)

// Engine is the ranking engine (C5): given a candidate set and a prompt,
// produces a total order using the comparison graph, pairwise ranker, and
// ensemble voter (spec §4.4).
type Engine struct {
	g     *graph.ComparisonGraph
	voter *EnsembleVoter
}

// NewEngine builds a ranking Engine over a fresh comparison graph. Per
// spec §5's shared-resource policy, the graph is owned by exactly one Rank
// call; callers must not reuse an Engine across ranking calls.
func NewEngine(voter *EnsembleVoter) *Engine {
	return &Engine{g: graph.New(), voter: voter}
}

// Rank produces a total order over candidates for prompt.
func (e *Engine) Rank(ctx context.Context, candidates []Candidate, prompt string, opts Options) (*RankingResult, error) {
	if opts.EnsembleSize < 1 {
		opts.EnsembleSize = 1
	}
	e.g.Seed(opts.KnownComparisons)

	feedback := make(map[string]*AggregatedFeedback, len(candidates))
	suggestion := make(map[string]string, len(candidates))
	for _, c := range candidates {
		feedback[c.ID] = &AggregatedFeedback{}
	}

	var result RankingResult
	n := len(candidates)
	winCounts := make(map[string]int, n)
	for _, c := range candidates {
		winCounts[c.ID] = 0
	}

	if opts.usesAllPairs(n) {
		if err := e.rankAllPairs(ctx, candidates, prompt, opts, feedback, suggestion, winCounts, &result); err != nil {
			return nil, err
		}
		result.Rankings = buildRankedCandidatesByWinCount(candidates, winCounts, feedback, suggestion)
	} else {
		order, err := e.rankTournament(ctx, candidates, prompt, opts, feedback, suggestion, winCounts, &result)
		if err != nil {
			return nil, err
		}
		result.Rankings = buildRankedCandidatesByOrder(order, winCounts, feedback, suggestion)
	}

	return &result, nil
}

// rankAllPairs implements spec §4.4's all-pairs strategy: every unordered
// pair is resolved, by inference where possible, else by an ensemble call.
// The final order is by descending win count.
func (e *Engine) rankAllPairs(ctx context.Context, candidates []Candidate, prompt string, opts Options, feedback map[string]*AggregatedFeedback, suggestion map[string]string, winCounts map[string]int, result *RankingResult) error {
	pairs := allPairs(candidates)
	total := len(pairs)

	for i, pair := range pairs {
		a, b := pair[0], pair[1]
		winner, inferred, agg, err := e.resolvePair(ctx, a, b, prompt, opts, feedback, suggestion, winCounts)
		e.reportProgress(opts, i+1, total, a.ID, b.ID, winner, inferred, agg, err)
		if err != nil {
			if !opts.GracefulDegradation {
				return err
			}
			result.Errors = append(result.Errors, ErrorRecord{
				Type: "comparison_failure", CandidateA: a.ID, CandidateB: b.ID, Message: err.Error(),
			})
			continue
		}
	}
	return nil
}

// rankTournament implements spec §4.4's tournament-with-transitivity
// strategy: a selection-sort over "remaining" candidates, each round's
// champion surviving every head-to-head against the others. The returned
// order is champions-first (best candidate first).
func (e *Engine) rankTournament(ctx context.Context, candidates []Candidate, prompt string, opts Options, feedback map[string]*AggregatedFeedback, suggestion map[string]string, winCounts map[string]int, result *RankingResult) ([]string, error) {
	remaining := append([]Candidate{}, candidates...)
	total := len(candidates) * (len(candidates) - 1) / 2
	completed := 0
	var order []string

	for len(remaining) > 0 {
		champion := remaining[0]
		rest := remaining[1:]

		var survivors []Candidate
		for _, challenger := range rest {
			winner, inferred, agg, err := e.resolvePair(ctx, champion, challenger, prompt, opts, feedback, suggestion, winCounts)
			completed++
			e.reportProgress(opts, completed, total, champion.ID, challenger.ID, winner, inferred, agg, err)
			if err != nil {
				if !opts.GracefulDegradation {
					return nil, err
				}
				result.Errors = append(result.Errors, ErrorRecord{
					Type: "comparison_failure", CandidateA: champion.ID, CandidateB: challenger.ID, Message: err.Error(),
				})
				survivors = append(survivors, challenger)
				continue
			}
			if winner == challenger.ID {
				survivors = append(survivors, champion)
				champion = challenger
			} else {
				survivors = append(survivors, challenger)
			}
		}

		order = append(order, champion.ID)
		remaining = survivors
	}
	return order, nil
}

// resolvePair resolves one head-to-head, crediting the comparison graph's
// inference when available, else calling the ensemble voter and recording
// the new edge. Returns the winning candidate id (empty on error) and
// whether the result came from inference.
func (e *Engine) resolvePair(ctx context.Context, a, b Candidate, prompt string, opts Options, feedback map[string]*AggregatedFeedback, suggestion map[string]string, winCounts map[string]int) (winner string, inferred bool, agg *AggregateVerdict, err error) {
	switch e.g.Infer(a.ID, b.ID) {
	case graph.A:
		winCounts[a.ID]++
		return a.ID, true, nil, nil
	case graph.B:
		winCounts[b.ID]++
		return b.ID, true, nil, nil
	}

	agg, err = e.voter.CompareEnsemble(ctx, a.ImageRef, b.ImageRef, prompt, opts.EnsembleSize)
	if err != nil {
		return "", false, nil, err
	}

	winnerCandidate := a
	loserCandidate := b
	if agg.Choice == collaborator.ChoiceB {
		winnerCandidate, loserCandidate = b, a
	}
	e.g.Record(winnerCandidate.ID, loserCandidate.ID)
	winCounts[winnerCandidate.ID]++

	fb := feedback[winnerCandidate.ID]
	fb.Strengths = appendDedup(fb.Strengths, agg.WinnerStrengths)
	lfb := feedback[loserCandidate.ID]
	lfb.Weaknesses = appendDedup(lfb.Weaknesses, agg.LoserWeaknesses)

	// Both sides took part in this comparison regardless of who won, so
	// both accumulate rank observations toward their eventual mean.
	feedback[a.ID].AlignmentSum += agg.RankA.Alignment
	feedback[a.ID].AestheticsSum += agg.RankA.Aesthetics
	feedback[a.ID].Observations++
	feedback[b.ID].AlignmentSum += agg.RankB.Alignment
	feedback[b.ID].AestheticsSum += agg.RankB.Aesthetics
	feedback[b.ID].Observations++

	if agg.ImprovementSuggestion != "" {
		suggestion[a.ID] = agg.ImprovementSuggestion
		suggestion[b.ID] = agg.ImprovementSuggestion
	}

	return winnerCandidate.ID, false, agg, nil
}

func (e *Engine) reportProgress(opts Options, completed, total int, a, b, winner string, inferred bool, agg *AggregateVerdict, err error) {
	if opts.OnProgress == nil {
		return
	}
	opts.OnProgress(ProgressEvent{
		Type: "comparison", Completed: completed, Total: total,
		CandidateA: a, CandidateB: b, Winner: winner, Inferred: inferred, Err: err, Verdict: agg,
	})
}

func allPairs(candidates []Candidate) [][2]Candidate {
	var pairs [][2]Candidate
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			pairs = append(pairs, [2]Candidate{candidates[i], candidates[j]})
		}
	}
	return pairs
}

// buildRankedCandidatesByWinCount sorts by descending win count (ties
// broken by original input order) and assigns dense 1-based ranks.
func buildRankedCandidatesByWinCount(candidates []Candidate, winCounts map[string]int, feedback map[string]*AggregatedFeedback, suggestion map[string]string) []RankedCandidate {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return winCounts[candidates[order[i]].ID] > winCounts[candidates[order[j]].ID]
	})

	ids := make([]string, len(candidates))
	for i, idx := range order {
		ids[i] = candidates[idx].ID
	}
	return buildRankedCandidatesByOrder(ids, winCounts, feedback, suggestion)
}

// buildRankedCandidatesByOrder assigns dense 1-based ranks in the given
// best-first candidate id order.
func buildRankedCandidatesByOrder(order []string, winCounts map[string]int, feedback map[string]*AggregatedFeedback, suggestion map[string]string) []RankedCandidate {
	out := make([]RankedCandidate, len(order))
	for i, id := range order {
		out[i] = RankedCandidate{
			CandidateID:           id,
			Rank:                  i + 1,
			WinCount:              winCounts[id],
			AggregatedFeedback:    feedback[id],
			ImprovementSuggestion: suggestion[id],
		}
	}
	return out
}
