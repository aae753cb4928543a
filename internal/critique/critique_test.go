package critique

import (
	"testing"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/rank"
	"github.com/stretchr/testify/assert"
)

func TestGenerate_NilFeedbackReturnsNil(t *testing.T) {
	assert.Nil(t, Generate(nil, "", DimensionWhat))
}

func TestGenerate_EmptyFeedbackReturnsNil(t *testing.T) {
	assert.Nil(t, Generate(&rank.AggregatedFeedback{}, "", DimensionHow))
}

func TestGenerate_UsesWeaknessesAndStrengthsAndSuggestion(t *testing.T) {
	fb := &rank.AggregatedFeedback{
		Strengths:  []string{"sharp focus", "good lighting"},
		Weaknesses: []string{"muddy background"},
	}
	c := Generate(fb, "increase depth of field", DimensionHow)

	assert.Equal(t, DimensionHow, c.Dimension)
	assert.Equal(t, "muddy background", c.Critique)
	assert.Equal(t, "increase depth of field", c.Recommendation)
	assert.Contains(t, c.Reason, "sharp focus")
	assert.Contains(t, c.Reason, "good lighting")
}

func TestGenerate_FallsBackWhenOnlySuggestionPresent(t *testing.T) {
	c := Generate(&rank.AggregatedFeedback{}, "try a wider shot", DimensionWhat)
	assert.Equal(t, "try a wider shot", c.Recommendation)
	assert.Contains(t, c.Critique, "what")
	assert.Contains(t, c.Reason, "no strengths")
}

func TestGenerateForSurvivors_DimensionComesFromCaller(t *testing.T) {
	rankings := []rank.RankedCandidate{
		{CandidateID: "c1", AggregatedFeedback: &rank.AggregatedFeedback{Weaknesses: []string{"low contrast"}}},
		{CandidateID: "c2", AggregatedFeedback: nil},
	}

	out := GenerateForSurvivors(rankings, []string{"c1", "c2", "c3"}, DimensionHow)

	assert.Equal(t, DimensionHow, out["c1"].Dimension)
	assert.Nil(t, out["c2"])
	assert.Nil(t, out["c3"]) // not present in rankings at all
}
