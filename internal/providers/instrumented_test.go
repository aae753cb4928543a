package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/cost"
)

func TestInstrumentedTextModel_RecordsTokensOnSuccess(t *testing.T) {
	inner := collaborator.NewMockTextModel()
	inner.Responses = []*collaborator.CompletionResult{{
		Text:  "refined",
		Usage: collaborator.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	tracker := cost.NewTracker(nil)
	m := NewInstrumentedTextModel(inner, "gpt-4o-mini", tracker)

	result, err := m.GenerateChat(context.Background(), "system", "user", collaborator.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "refined", result.Text)

	totals, _, _ := tracker.Totals()
	assert.Equal(t, 15, totals.TotalTokens)
}

func TestInstrumentedTextModel_SkipsTrackingOnError(t *testing.T) {
	inner := collaborator.NewMockTextModel()
	inner.Errors = []error{errors.New("down")}
	tracker := cost.NewTracker(nil)
	m := NewInstrumentedTextModel(inner, "gpt-4o-mini", tracker)

	_, err := m.GenerateChat(context.Background(), "system", "user", collaborator.CompletionOptions{})
	assert.Error(t, err)

	totals, _, _ := tracker.Totals()
	assert.Equal(t, 0, totals.TotalTokens)
}
