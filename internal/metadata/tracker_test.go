package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/critique"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tr, err := Initialize(t.TempDir(), "ses-1", "a cat wearing a hat", map[string]any{"beam_width": 4}, now)
	require.NoError(t, err)
	return tr
}

func readMetadata(t *testing.T, tr *Tracker) SessionRecord {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(tr.Dir(), "metadata.json"))
	require.NoError(t, err)
	var rec SessionRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestInitialize_WritesSkeleton(t *testing.T) {
	tr := newTestTracker(t)
	rec := readMetadata(t, tr)

	assert.Equal(t, "ses-1", rec.SessionID)
	assert.Empty(t, rec.Iterations)
	assert.Nil(t, rec.FinalWinner)
}

func TestRecordAttempt_AssignsSequentialCandidateIndex(t *testing.T) {
	tr := newTestTracker(t)

	idx0, err := tr.RecordAttempt(0, nil, "what", "a cat", "in watercolor", "a cat in watercolor", nil)
	require.NoError(t, err)
	idx1, err := tr.RecordAttempt(0, nil, "what", "a dog", "in watercolor", "a dog in watercolor", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, idx0)
	assert.Equal(t, 1, idx1)

	rec := readMetadata(t, tr)
	require.Len(t, rec.Iterations, 1)
	require.Len(t, rec.Iterations[0].Candidates, 2)
	assert.Equal(t, StatusAttempted, rec.Iterations[0].Candidates[0].Status)
}

func TestUpdateAttemptWithResults_MarksCompleted(t *testing.T) {
	tr := newTestTracker(t)
	idx, err := tr.RecordAttempt(0, nil, "what", "a cat", "in oil paint", "a cat in oil paint", nil)
	require.NoError(t, err)

	score := 91.5
	err = tr.UpdateAttemptWithResults(0, idx, "2026-02-10/ses-1/iter0-cand0.png", &Evaluation{AlignmentScore: 90, AestheticScore: 8}, &score, true)
	require.NoError(t, err)

	rec := readMetadata(t, tr)
	c := rec.Iterations[0].Candidates[0]
	assert.Equal(t, StatusCompleted, c.Status)
	assert.True(t, c.Survived)
	require.NotNil(t, c.TotalScore)
	assert.Equal(t, 91.5, *c.TotalScore)
}

func TestMarkAttemptFailed(t *testing.T) {
	tr := newTestTracker(t)
	idx, err := tr.RecordAttempt(0, nil, "what", "a cat", "", "a cat", nil)
	require.NoError(t, err)

	require.NoError(t, tr.MarkAttemptFailed(0, idx))

	rec := readMetadata(t, tr)
	assert.Equal(t, StatusFailed, rec.Iterations[0].Candidates[0].Status)
}

func TestUpdateAttemptWithResults_UnknownCandidateErrors(t *testing.T) {
	tr := newTestTracker(t)
	err := tr.UpdateAttemptWithResults(0, 0, "", nil, nil, false)
	assert.Error(t, err)
}

func TestEnrichCandidateWithRankingData_RecomputesBestByTotalScore(t *testing.T) {
	tr := newTestTracker(t)
	i0, _ := tr.RecordAttempt(0, nil, "what", "a", "", "a", nil)
	i1, _ := tr.RecordAttempt(0, nil, "what", "b", "", "b", nil)

	lowScore, highScore := 50.0, 90.0
	require.NoError(t, tr.UpdateAttemptWithResults(0, i0, "img0.png", nil, &lowScore, false))
	require.NoError(t, tr.UpdateAttemptWithResults(0, i1, "img1.png", nil, &highScore, true))

	require.NoError(t, tr.EnrichCandidateWithRankingData(0, i0, nil, &AggregatedFeedback{Combined: 1.2}, nil))
	require.NoError(t, tr.EnrichCandidateWithRankingData(0, i1, nil, &AggregatedFeedback{Combined: 1.8}, nil))

	rec := readMetadata(t, tr)
	require.NotNil(t, rec.Iterations[0].BestCandidateIndex)
	assert.Equal(t, i1, *rec.Iterations[0].BestCandidateIndex)
	assert.Equal(t, highScore, *rec.Iterations[0].BestScore)
}

func TestEnrichCandidateWithRankingData_FallsBackToCombinedRankWhenNoScores(t *testing.T) {
	tr := newTestTracker(t)
	i0, _ := tr.RecordAttempt(0, nil, "what", "a", "", "a", nil)
	i1, _ := tr.RecordAttempt(0, nil, "what", "b", "", "b", nil)

	require.NoError(t, tr.EnrichCandidateWithRankingData(0, i0, nil, &AggregatedFeedback{Combined: 1.9}, nil))
	require.NoError(t, tr.EnrichCandidateWithRankingData(0, i1, nil, &AggregatedFeedback{Combined: 1.1}, nil))

	rec := readMetadata(t, tr)
	require.NotNil(t, rec.Iterations[0].BestCandidateIndex)
	assert.Equal(t, i1, *rec.Iterations[0].BestCandidateIndex) // lower combined wins
	assert.Nil(t, rec.Iterations[0].BestScore)
}

func TestEnrichCandidateWithRankingData_UnknownIterationErrors(t *testing.T) {
	tr := newTestTracker(t)
	err := tr.EnrichCandidateWithRankingData(5, 0, nil, nil, nil)
	assert.Error(t, err)
}

func TestEnrichCandidateWithRankingData_SetsCritique(t *testing.T) {
	tr := newTestTracker(t)
	idx, _ := tr.RecordAttempt(0, nil, "what", "a", "", "a", nil)

	c := &critique.Critique{Dimension: critique.DimensionHow, Critique: "too dark", Recommendation: "brighten", Reason: "preserve sharpness"}
	require.NoError(t, tr.EnrichCandidateWithRankingData(0, idx, nil, &AggregatedFeedback{}, c))

	rec := readMetadata(t, tr)
	require.NotNil(t, rec.Iterations[0].Candidates[0].Critique)
	assert.Equal(t, "too dark", rec.Iterations[0].Candidates[0].Critique.Critique)
}

func TestMarkFinalWinner_WalksLineageRootFirst(t *testing.T) {
	tr := newTestTracker(t)

	root, _ := tr.RecordAttempt(0, nil, "what", "root", "", "root", nil)
	parentIdx := root
	child, _ := tr.RecordAttempt(1, &parentIdx, "how", "child", "", "child", nil)
	childIdx := child
	grandchild, _ := tr.RecordAttempt(2, &childIdx, "what", "grandchild", "", "grandchild", nil)

	score := 95.0
	require.NoError(t, tr.MarkFinalWinner(2, grandchild, &score))

	rec := readMetadata(t, tr)
	require.Len(t, rec.Lineage, 3)
	assert.Equal(t, 0, rec.Lineage[0].Iteration)
	assert.Equal(t, 1, rec.Lineage[1].Iteration)
	assert.Equal(t, 2, rec.Lineage[2].Iteration)
	require.NotNil(t, rec.FinalWinner)
	assert.Equal(t, grandchild, rec.FinalWinner.CandidateIndex)
}

func TestPersistTokens_WritesSideFile(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)

	err := tr.PersistTokens(
		TokenTotals{TotalTokens: 100, PerOperation: map[string]int{"refine": 100}},
		CostTotals{Total: 0.01, PerOperation: map[string]float64{"refine": 0.01}},
		[]TokenRecord{{Provider: "openai", Operation: "refine", Tokens: 100}},
		now,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tr.Dir(), "tokens.json"))
	require.NoError(t, err)
	var doc TokensDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "ses-1", doc.SessionID)
	assert.Equal(t, 100, doc.Totals.TotalTokens)
}

func TestWriteAtomic_LeavesNoTempFilesBehind(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.RecordAttempt(0, nil, "what", "a", "", "a", nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(tr.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}
