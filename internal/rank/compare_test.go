package rank

import (
	"context"
	"math/rand"
	"testing"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verdictAWins() *collaborator.Verdict {
	return &collaborator.Verdict{
		Choice:     collaborator.ChoiceA,
		Confidence: 0.8,
		RankA:      collaborator.Rank{Alignment: 1, Aesthetics: 1},
		RankB:      collaborator.Rank{Alignment: 2, Aesthetics: 2},
	}
}

func TestPairwiseRanker_Compare(t *testing.T) {
	vc := collaborator.NewMockVisionComparator()
	vc.Default = verdictAWins()
	ranker := NewPairwiseRanker(vc, 0.5, rand.New(rand.NewSource(1)))

	cmp, err := ranker.Compare(context.Background(), "a.png", "b.png", "a cat")
	require.NoError(t, err)
	assert.Less(t, cmp.CombinedA, cmp.CombinedB)
}

func TestPairwiseRanker_Compare_RejectsMalformedChoice(t *testing.T) {
	vc := collaborator.NewMockVisionComparator()
	bad := verdictAWins()
	bad.Choice = "WINNER"
	vc.Default = bad
	ranker := NewPairwiseRanker(vc, 0.5, rand.New(rand.NewSource(1)))

	_, err := ranker.Compare(context.Background(), "a.png", "b.png", "a cat")
	assert.Error(t, err)
}

func TestPairwiseRanker_CompareDebiased_PreservesOrientation(t *testing.T) {
	vc := collaborator.NewMockVisionComparator()
	vc.Default = verdictAWins()

	// seed so Float64() < 0.5 is true on the first draw, forcing a flip
	ranker := NewPairwiseRanker(vc, 0.5, rand.New(rand.NewSource(2)))

	cmp, err := ranker.CompareDebiased(context.Background(), "a.png", "b.png", "a cat")
	require.NoError(t, err)

	// The flipped call asked the collaborator about (b.png, a.png), and the
	// mock always picks its first operand, so b.png won. In the caller's
	// original a/b orientation that is choice B with B's combined lower.
	require.Len(t, vc.Calls, 1)
	assert.Equal(t, "b.png", vc.Calls[0].A)
	assert.Equal(t, collaborator.ChoiceB, cmp.Verdict.Choice)
	assert.Less(t, cmp.CombinedB, cmp.CombinedA)
}

func TestInvertChoice(t *testing.T) {
	assert.Equal(t, collaborator.ChoiceB, invertChoice(collaborator.ChoiceA))
	assert.Equal(t, collaborator.ChoiceA, invertChoice(collaborator.ChoiceB))
	assert.Equal(t, collaborator.ChoiceTie, invertChoice(collaborator.ChoiceTie))
}
