package beam

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/critique"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/metadata"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/rank"
)

// Run executes the beam-search state machine of spec §4.7 against
// userPrompt, iterating until max_iterations, and marks the session's
// global winner before returning.
func (o *Orchestrator) Run(ctx context.Context, userPrompt string) (*Result, error) {
	parents := []candidateState{{whatPrompt: userPrompt, howPrompt: userPrompt}}

	var best globalBest

	for t := 0; t < o.cfg.MaxIterations; t++ {
		dimension := o.cfg.DimensionForIteration(t)
		nextDimension := o.cfg.DimensionForIteration(t + 1)

		children := o.expand(ctx, t, dimension, parents)

		var completed []childResult
		for _, c := range children {
			if c.ok {
				completed = append(completed, c)
			}
		}
		if len(completed) == 0 {
			return nil, fmt.Errorf("beam: iteration %d produced no completed candidates", t)
		}

		candidates := make([]rank.Candidate, len(completed))
		for i, c := range completed {
			candidates[i] = rank.Candidate{ID: strconv.Itoa(c.candidateIndex), ImageRef: c.imageRef}
		}

		var events []rank.ProgressEvent
		var eventsMu sync.Mutex
		voter := o.collab.VoterFactory()
		engine := rank.NewEngine(voter)
		opts := rank.Options{
			EnsembleSize:        o.cfg.EnsembleSize,
			Strategy:            rank.Strategy(o.cfg.RankingStrategy),
			GracefulDegradation: o.cfg.GracefulDegradation,
			AlignmentWeight:     o.cfg.AlignmentWeight,
			OnProgress: func(ev rank.ProgressEvent) {
				eventsMu.Lock()
				events = append(events, ev)
				eventsMu.Unlock()
			},
		}

		result, err := engine.Rank(ctx, candidates, userPrompt, opts)
		if err != nil {
			return nil, fmt.Errorf("beam: iteration %d ranking failed: %w", t, err)
		}

		comparisonsByID := buildComparisonRecords(events)

		survivorCount := o.cfg.KeepTop
		if survivorCount > len(result.Rankings) {
			survivorCount = len(result.Rankings)
		}
		survivorIDs := make([]string, survivorCount)
		for i := 0; i < survivorCount; i++ {
			survivorIDs[i] = result.Rankings[i].CandidateID
		}
		survived := make(map[string]bool, len(survivorIDs))
		for _, id := range survivorIDs {
			survived[id] = true
		}

		critiques := critique.GenerateForSurvivors(result.Rankings, survivorIDs, critique.Dimension(nextDimension))

		childByIndex := make(map[int]childResult, len(completed))
		for _, c := range completed {
			childByIndex[c.candidateIndex] = c
		}

		for _, rc := range result.Rankings {
			idx, err := strconv.Atoi(rc.CandidateID)
			if err != nil {
				continue
			}
			alignment, aesthetics, combined := rc.AggregatedFeedback.MeanRanks(o.cfg.AlignmentWeight)
			feedback := &metadata.AggregatedFeedback{
				Strengths:             rc.AggregatedFeedback.Strengths,
				Weaknesses:            rc.AggregatedFeedback.Weaknesses,
				Ranks:                 metadata.Rank{Alignment: alignment, Aesthetics: aesthetics},
				Combined:              combined,
				ImprovementSuggestion: rc.ImprovementSuggestion,
			}
			if err := o.tracker.EnrichCandidateWithRankingData(t, idx, comparisonsByID[rc.CandidateID], feedback, critiques[rc.CandidateID]); err != nil {
				return nil, fmt.Errorf("beam: iteration %d enrich candidate %d: %w", t, idx, err)
			}
			if survived[rc.CandidateID] {
				if err := o.tracker.MarkSurvived(t, idx, true); err != nil {
					return nil, fmt.Errorf("beam: iteration %d mark survived %d: %w", t, idx, err)
				}
			}

			best.consider(t, idx, nil, combined)
		}

		var nextParents []candidateState
		for _, id := range survivorIDs {
			idx, _ := strconv.Atoi(id)
			c := childByIndex[idx]
			candidateIdx := idx
			nextParents = append(nextParents, candidateState{
				candidateIndex: &candidateIdx,
				whatPrompt:     c.whatPrompt,
				howPrompt:      c.howPrompt,
				imageRef:       c.imageRef,
				critique:       critiques[id],
			})
		}
		parents = nextParents
	}

	if !best.set {
		return nil, fmt.Errorf("beam: session produced no ranked candidates")
	}
	if err := o.tracker.MarkFinalWinner(best.iteration, best.candidateIndex, best.totalScore); err != nil {
		return nil, fmt.Errorf("beam: mark final winner: %w", err)
	}

	return &Result{WinnerIteration: best.iteration, WinnerCandidate: best.candidateIndex, WinnerScore: best.totalScore}, nil
}

// globalBest tracks the session-wide winner across every iteration's
// ranked candidates, applying the same tie-break rule as
// internal/metadata's per-iteration best: prefer a numeric total_score
// (higher wins); among those without one, prefer the lowest combined
// rank; ties keep whichever candidate was considered first (spec §4.7,
// "after the final iteration, pick the global winner").
type globalBest struct {
	set            bool
	iteration      int
	candidateIndex int
	totalScore     *float64
	combined       float64
}

func (b *globalBest) consider(iteration, candidateIndex int, totalScore *float64, combined float64) {
	if !b.set {
		*b = globalBest{set: true, iteration: iteration, candidateIndex: candidateIndex, totalScore: totalScore, combined: combined}
		return
	}
	if b.totalScore != nil {
		if totalScore != nil && *totalScore > *b.totalScore {
			*b = globalBest{set: true, iteration: iteration, candidateIndex: candidateIndex, totalScore: totalScore, combined: combined}
		}
		return
	}
	if totalScore != nil {
		*b = globalBest{set: true, iteration: iteration, candidateIndex: candidateIndex, totalScore: totalScore, combined: combined}
		return
	}
	if combined < b.combined {
		*b = globalBest{set: true, iteration: iteration, candidateIndex: candidateIndex, totalScore: totalScore, combined: combined}
	}
}

// expand runs spec §4.7 step 3: assigns beam_width child slots round-robin
// over parents, and fans each child out to a bounded-concurrency worker
// (grounded on runtime.go's CallParallel semaphore shape, expressed here
// with errgroup.Group.SetLimit instead of a hand-rolled semaphore channel).
// A single child's failure never aborts the iteration, so the group's own
// goroutines never return an error; expandOne records failure on the
// childResult instead.
func (o *Orchestrator) expand(ctx context.Context, iteration int, dimension string, parents []candidateState) []childResult {
	assignments := childParentAssignments(len(parents), o.cfg.BeamWidth)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.BeamWidth)
	results := make([]childResult, len(assignments))

	for j, parentIdx := range assignments {
		j, parentIdx := j, parentIdx
		g.Go(func() error {
			select {
			case <-gctx.Done():
				results[j] = childResult{parentIdx: parentIdx, ok: false}
				return nil
			default:
			}
			results[j] = o.expandOne(ctx, iteration, dimension, parentIdx, parents[parentIdx])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// expandOne runs one child's record/refine/combine/generate/update
// sequence (spec §4.7 step 3a-d).
func (o *Orchestrator) expandOne(ctx context.Context, iteration int, dimension string, parentIdx int, parent candidateState) childResult {
	candidateIndex, err := o.tracker.RecordAttempt(iteration, parent.candidateIndex, dimension, parent.whatPrompt, parent.howPrompt, "", parent.critique)
	if err != nil {
		return childResult{parentIdx: parentIdx, ok: false}
	}

	res := childResult{candidateIndex: candidateIndex, parentIdx: parentIdx, dimension: dimension}

	whatPrompt, howPrompt, err := o.refine(ctx, dimension, parent)
	if err != nil {
		o.tracker.MarkAttemptFailed(iteration, candidateIndex)
		return res
	}
	res.whatPrompt, res.howPrompt = whatPrompt, howPrompt

	combined, err := o.combine(ctx, whatPrompt, howPrompt)
	if err != nil {
		o.tracker.MarkAttemptFailed(iteration, candidateIndex)
		return res
	}
	res.combinedPrompt = combined

	img, err := o.collab.ImageGenerator.Generate(ctx, combined, collaborator.ImageGenerationOptions{})
	if err != nil {
		o.tracker.MarkAttemptFailed(iteration, candidateIndex)
		return res
	}
	res.imageRef = img.ImageRef

	if err := o.tracker.UpdateAttemptWithResults(iteration, candidateIndex, img.ImageRef, nil, nil, false); err != nil {
		return res
	}

	res.ok = true
	return res
}

// refine calls the text model to update the parent's d_t sub-prompt,
// leaving the other sub-prompt unchanged (spec §4.7 step 3b).
func (o *Orchestrator) refine(ctx context.Context, dimension string, parent candidateState) (whatPrompt, howPrompt string, err error) {
	target := parent.whatPrompt
	if dimension == "how" {
		target = parent.howPrompt
	}

	system := fmt.Sprintf("You refine the %q aspect of an image-generation prompt. Return only the revised prompt text.", dimension)
	user := target
	if parent.critique != nil {
		user = fmt.Sprintf("Current prompt: %s\nCritique: %s\nRecommendation: %s\nPreserve: %s", target, parent.critique.Critique, parent.critique.Recommendation, parent.critique.Reason)
	}

	completion, err := o.collab.TextModel.GenerateChat(ctx, system, user, collaborator.CompletionOptions{})
	if err != nil {
		return "", "", err
	}

	refined := completion.Text
	if dimension == "how" {
		return parent.whatPrompt, refined, nil
	}
	return refined, parent.howPrompt, nil
}

// combine merges the what/how sub-prompts into a single generation prompt
// via the text model (spec §4.7 step 3b).
func (o *Orchestrator) combine(ctx context.Context, whatPrompt, howPrompt string) (string, error) {
	system := "You merge a subject description and a style description into one coherent image-generation prompt. Return only the merged prompt text."
	user := fmt.Sprintf("Subject (what): %s\nStyle (how): %s", whatPrompt, howPrompt)

	completion, err := o.collab.TextModel.GenerateChat(ctx, system, user, collaborator.CompletionOptions{})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

// childParentAssignments assigns beamWidth child slots to nParents parents
// round-robin, so every parent gets an (approximately) equal share of the
// beam.
func childParentAssignments(nParents, beamWidth int) []int {
	out := make([]int, beamWidth)
	for i := range out {
		out[i] = i % nParents
	}
	return out
}

// buildComparisonRecords groups progress-event verdicts into per-candidate
// comparison lists, in the temporal order comparisons were resolved (spec
// §5's ordering guarantee). Inferred results carry no verdict and
// contribute no comparison record.
func buildComparisonRecords(events []rank.ProgressEvent) map[string][]metadata.ComparisonRecord {
	out := make(map[string][]metadata.ComparisonRecord)
	for _, ev := range events {
		if ev.Verdict == nil {
			continue
		}
		ts := time.Now().Format(time.RFC3339Nano)
		out[ev.CandidateA] = append(out[ev.CandidateA], metadata.ComparisonRecord{
			OpponentCandidateIndex: mustAtoi(ev.CandidateB),
			Result:                 resultFor(ev.CandidateA, ev.Winner),
			MyRanks:                metadata.Rank{Alignment: ev.Verdict.RankA.Alignment, Aesthetics: ev.Verdict.RankA.Aesthetics},
			OpponentRanks:          metadata.Rank{Alignment: ev.Verdict.RankB.Alignment, Aesthetics: ev.Verdict.RankB.Aesthetics},
			Timestamp:              ts,
		})
		out[ev.CandidateB] = append(out[ev.CandidateB], metadata.ComparisonRecord{
			OpponentCandidateIndex: mustAtoi(ev.CandidateA),
			Result:                 resultFor(ev.CandidateB, ev.Winner),
			MyRanks:                metadata.Rank{Alignment: ev.Verdict.RankB.Alignment, Aesthetics: ev.Verdict.RankB.Aesthetics},
			OpponentRanks:          metadata.Rank{Alignment: ev.Verdict.RankA.Alignment, Aesthetics: ev.Verdict.RankA.Aesthetics},
			Timestamp:              ts,
		})
	}
	return out
}

func resultFor(candidateID, winner string) metadata.ComparisonResult {
	if winner == "" {
		return metadata.ResultTie
	}
	if winner == candidateID {
		return metadata.ResultWin
	}
	return metadata.ResultLoss
}

func mustAtoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
