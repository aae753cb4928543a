package rank

import (
	"context"
	"math/rand"
	"testing"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptTotalOrder scripts every ordered pair among ids so that ids[i]
// beats ids[j] whenever i < j, regardless of compare_debiased's flip.
func scriptTotalOrder(vc *collaborator.MockVisionComparator, ids []string) {
	for i := 0; i < len(ids); i++ {
		for j := 0; j < len(ids); j++ {
			if i == j {
				continue
			}
			choice := collaborator.ChoiceA
			if i > j {
				choice = collaborator.ChoiceB
			}
			vc.SetVerdict(ids[i], ids[j], &collaborator.Verdict{
				Choice: choice,
				RankA:  collaborator.Rank{Alignment: 1, Aesthetics: 1},
				RankB:  collaborator.Rank{Alignment: 2, Aesthetics: 2},
			})
		}
	}
}

func newEngine(vc *collaborator.MockVisionComparator, seed int64) *Engine {
	ranker := NewPairwiseRanker(vc, 0.5, rand.New(rand.NewSource(seed)))
	return NewEngine(NewEnsembleVoter(ranker))
}

func candidatesFromIDs(ids []string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, ImageRef: id}
	}
	return out
}

func TestEngine_Rank_AllPairs_TotalOrder(t *testing.T) {
	ids := []string{"c1", "c2", "c3", "c4"}
	vc := collaborator.NewMockVisionComparator()
	scriptTotalOrder(vc, ids)
	engine := newEngine(vc, 11)

	result, err := engine.Rank(context.Background(), candidatesFromIDs(ids), "a cat", Options{
		Strategy: StrategyAllPairs, EnsembleSize: 1, AlignmentWeight: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, result.Rankings, 4)

	for i, rc := range result.Rankings {
		assert.Equal(t, ids[i], rc.CandidateID)
		assert.Equal(t, i+1, rc.Rank)
	}
	assert.Equal(t, 3, result.Rankings[0].WinCount)
	assert.Equal(t, 0, result.Rankings[3].WinCount)
}

func TestEngine_Rank_Tournament_TotalOrder(t *testing.T) {
	ids := []string{"c1", "c2", "c3", "c4", "c5"}
	vc := collaborator.NewMockVisionComparator()
	scriptTotalOrder(vc, ids)
	engine := newEngine(vc, 5)

	result, err := engine.Rank(context.Background(), candidatesFromIDs(ids), "a cat", Options{
		Strategy: StrategyTournament, EnsembleSize: 1, AlignmentWeight: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, result.Rankings, 5)

	for i, rc := range result.Rankings {
		assert.Equal(t, ids[i], rc.CandidateID)
		assert.Equal(t, i+1, rc.Rank)
	}
}

func TestEngine_Rank_AutoStrategyPicksAllPairsBelowThreshold(t *testing.T) {
	opts := Options{Strategy: StrategyAuto}
	assert.True(t, opts.usesAllPairs(8))
	assert.False(t, opts.usesAllPairs(9))
}

func TestEngine_Rank_KnownComparisonsShortCircuit(t *testing.T) {
	ids := []string{"c1", "c2"}
	vc := collaborator.NewMockVisionComparator()
	// Deliberately do not script any verdict: a call would error.
	engine := newEngine(vc, 1)

	result, err := engine.Rank(context.Background(), candidatesFromIDs(ids), "a cat", Options{
		Strategy:         StrategyAllPairs,
		EnsembleSize:     1,
		KnownComparisons: [][2]string{{"c1", "c2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, vc.CallCount())
	assert.Equal(t, "c1", result.Rankings[0].CandidateID)
}

func TestEngine_Rank_GracefulDegradationRecordsErrorAndContinues(t *testing.T) {
	ids := []string{"c1", "c2", "c3"}
	vc := collaborator.NewMockVisionComparator()
	scriptTotalOrder(vc, ids)
	vc.SetError("c1", "c2", assert.AnError)
	vc.SetError("c2", "c1", assert.AnError)
	engine := newEngine(vc, 9)

	result, err := engine.Rank(context.Background(), candidatesFromIDs(ids), "a cat", Options{
		Strategy: StrategyAllPairs, EnsembleSize: 1, GracefulDegradation: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "comparison_failure", result.Errors[0].Type)
}

func TestEngine_Rank_NonGracefulAbortsOnFirstFailure(t *testing.T) {
	ids := []string{"c1", "c2", "c3"}
	vc := collaborator.NewMockVisionComparator()
	scriptTotalOrder(vc, ids)
	vc.SetError("c1", "c2", assert.AnError)
	vc.SetError("c2", "c1", assert.AnError)
	engine := newEngine(vc, 9)

	_, err := engine.Rank(context.Background(), candidatesFromIDs(ids), "a cat", Options{
		Strategy: StrategyAllPairs, EnsembleSize: 1, GracefulDegradation: false,
	})
	assert.Error(t, err)
}

func TestEngine_Rank_ProgressEventsFired(t *testing.T) {
	ids := []string{"c1", "c2", "c3"}
	vc := collaborator.NewMockVisionComparator()
	scriptTotalOrder(vc, ids)
	engine := newEngine(vc, 2)

	var events []ProgressEvent
	_, err := engine.Rank(context.Background(), candidatesFromIDs(ids), "a cat", Options{
		Strategy: StrategyAllPairs, EnsembleSize: 1,
		OnProgress: func(e ProgressEvent) { events = append(events, e) },
	})
	require.NoError(t, err)
	assert.Len(t, events, 3) // 3 choose 2
	for _, e := range events {
		assert.Equal(t, "comparison", e.Type)
	}
}
