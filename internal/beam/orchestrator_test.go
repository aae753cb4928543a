package beam

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/metadata"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/rank"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMetadataFile(tr *metadata.Tracker) (*metadata.SessionRecord, error) {
	data, err := os.ReadFile(filepath.Join(tr.Dir(), "metadata.json"))
	if err != nil {
		return nil, err
	}
	var rec metadata.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func newTestConfig() *config.SessionConfig {
	return &config.SessionConfig{
		BeamWidth:          2,
		KeepTop:            1,
		MaxIterations:      2,
		AlignmentWeight:    0.5,
		EnsembleSize:       1,
		RankingStrategy:    config.RankingAuto,
		RefinementSchedule: []string{"what", "how"},
	}
}

func newTestTracker(t *testing.T) *metadata.Tracker {
	t.Helper()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tr, err := metadata.Initialize(t.TempDir(), "ses-1", "a cat wearing a hat", nil, now)
	require.NoError(t, err)
	return tr
}

// symmetricVoterFactory returns a voter whose comparator always reports a
// tie with equal ranks, so every comparison's winner is deterministic
// (the left operand, per tie policy) regardless of compare_debiased's
// random flip.
func symmetricVoterFactory() func() *rank.EnsembleVoter {
	return func() *rank.EnsembleVoter {
		vc := collaborator.NewMockVisionComparator()
		vc.Default = &collaborator.Verdict{
			Choice: collaborator.ChoiceTie,
			RankA:  collaborator.Rank{Alignment: 1, Aesthetics: 1},
			RankB:  collaborator.Rank{Alignment: 1, Aesthetics: 1},
		}
		ranker := rank.NewPairwiseRanker(vc, 0.5, rand.New(rand.NewSource(7)))
		return rank.NewEnsembleVoter(ranker)
	}
}

func TestOrchestrator_Run_CompletesAllIterations(t *testing.T) {
	tracker := newTestTracker(t)
	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: collaborator.NewMockImageGenerator(),
		VoterFactory:   symmetricVoterFactory(),
	}
	o := New(newTestConfig(), collab, tracker)

	result, err := o.Run(context.Background(), "a cat wearing a hat")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.WinnerIteration, 0)
	assert.Less(t, result.WinnerIteration, 2)
}

func TestOrchestrator_Run_RecordsEveryChildAttempt(t *testing.T) {
	tracker := newTestTracker(t)
	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: collaborator.NewMockImageGenerator(),
		VoterFactory:   symmetricVoterFactory(),
	}
	o := New(newTestConfig(), collab, tracker)

	_, err := o.Run(context.Background(), "a cat wearing a hat")
	require.NoError(t, err)

	data, err := readMetadataFile(tracker)
	require.NoError(t, err)
	require.Len(t, data.Iterations, 2)
	assert.Len(t, data.Iterations[0].Candidates, 2)
	assert.Len(t, data.Iterations[1].Candidates, 2)
	for _, c := range data.Iterations[0].Candidates {
		assert.Equal(t, metadata.StatusCompleted, c.Status)
	}
}

func TestOrchestrator_Run_MarksExactlyKeepTopSurvivors(t *testing.T) {
	tracker := newTestTracker(t)
	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: collaborator.NewMockImageGenerator(),
		VoterFactory:   symmetricVoterFactory(),
	}
	o := New(newTestConfig(), collab, tracker)

	_, err := o.Run(context.Background(), "a cat wearing a hat")
	require.NoError(t, err)

	data, err := readMetadataFile(tracker)
	require.NoError(t, err)
	survived := 0
	for _, c := range data.Iterations[0].Candidates {
		if c.Survived {
			survived++
		}
	}
	assert.Equal(t, 1, survived)
}

func TestOrchestrator_Run_SingleChildFailureDoesNotAbortIteration(t *testing.T) {
	tracker := newTestTracker(t)
	img := collaborator.NewMockImageGenerator()
	img.Errors = []error{errors.New("image generation unavailable")}
	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: img,
		VoterFactory:   symmetricVoterFactory(),
	}
	o := New(newTestConfig(), collab, tracker)

	result, err := o.Run(context.Background(), "a cat wearing a hat")
	require.NoError(t, err)
	assert.NotNil(t, result)

	data, err := readMetadataFile(tracker)
	require.NoError(t, err)
	statuses := map[metadata.Status]int{}
	for _, c := range data.Iterations[0].Candidates {
		statuses[c.Status]++
	}
	assert.Equal(t, 1, statuses[metadata.StatusFailed])
	assert.Equal(t, 1, statuses[metadata.StatusCompleted])
}

func TestOrchestrator_Run_MarksFinalWinner(t *testing.T) {
	tracker := newTestTracker(t)
	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: collaborator.NewMockImageGenerator(),
		VoterFactory:   symmetricVoterFactory(),
	}
	o := New(newTestConfig(), collab, tracker)

	_, err := o.Run(context.Background(), "a cat wearing a hat")
	require.NoError(t, err)

	data, err := readMetadataFile(tracker)
	require.NoError(t, err)
	require.NotNil(t, data.FinalWinner)
	require.NotEmpty(t, data.Lineage)
	assert.Equal(t, 0, data.Lineage[0].Iteration)
}

// TestOrchestrator_Run_PicksGlobalWinnerAcrossIterations exercises spec
// §4.7's "after the final iteration, pick the global winner" rule against
// a comparator that distinguishes candidates, so the session-wide winner
// is not trivially the last iteration's top survivor.
func TestOrchestrator_Run_PicksGlobalWinnerAcrossIterations(t *testing.T) {
	tracker := newTestTracker(t)
	vc := collaborator.NewMockVisionComparator()
	// iteration 0's two children: mock-image-0.png beats mock-image-1.png
	// decisively (lower combined).
	vc.SetVerdict("mock-image-0.png", "mock-image-1.png", &collaborator.Verdict{
		Choice: collaborator.ChoiceA,
		RankA:  collaborator.Rank{Alignment: 1, Aesthetics: 1},
		RankB:  collaborator.Rank{Alignment: 2, Aesthetics: 2},
	})
	vc.SetVerdict("mock-image-1.png", "mock-image-0.png", &collaborator.Verdict{
		Choice: collaborator.ChoiceB,
		RankA:  collaborator.Rank{Alignment: 2, Aesthetics: 2},
		RankB:  collaborator.Rank{Alignment: 1, Aesthetics: 1},
	})
	// iteration 1's two children tie with each other, but worse than
	// iteration 0's winner.
	vc.Default = &collaborator.Verdict{
		Choice: collaborator.ChoiceTie,
		RankA:  collaborator.Rank{Alignment: 2, Aesthetics: 2},
		RankB:  collaborator.Rank{Alignment: 2, Aesthetics: 2},
	}
	ranker := rank.NewPairwiseRanker(vc, 0.5, rand.New(rand.NewSource(3)))

	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: collaborator.NewMockImageGenerator(),
		VoterFactory:   func() *rank.EnsembleVoter { return rank.NewEnsembleVoter(ranker) },
	}
	o := New(newTestConfig(), collab, tracker)

	result, err := o.Run(context.Background(), "a cat wearing a hat")
	require.NoError(t, err)
	assert.Equal(t, 0, result.WinnerIteration)
	assert.Equal(t, 0, result.WinnerCandidate)
}

func TestOrchestrator_Run_AbortsWhenAllChildrenFail(t *testing.T) {
	tracker := newTestTracker(t)
	img := collaborator.NewMockImageGenerator()
	img.Errors = []error{errors.New("down"), errors.New("down")}
	collab := Collaborators{
		TextModel:      collaborator.NewMockTextModel(),
		ImageGenerator: img,
		VoterFactory:   symmetricVoterFactory(),
	}
	o := New(newTestConfig(), collab, tracker)

	_, err := o.Run(context.Background(), "a cat wearing a hat")
	assert.Error(t, err)
}
