package providers

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/cost"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/observability"
	promobs "github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/observability"
)

// InstrumentedTextModel wraps a collaborator.TextModel with span tracing,
// Prometheus metrics, and token/cost tracking, as a decorator around any
// TextModel.
type InstrumentedTextModel struct {
	inner   collaborator.TextModel
	model   string
	tracker *cost.Tracker
}

// NewInstrumentedTextModel wraps inner. tracker may be nil to skip cost
// accounting.
func NewInstrumentedTextModel(inner collaborator.TextModel, model string, tracker *cost.Tracker) *InstrumentedTextModel {
	return &InstrumentedTextModel{inner: inner, model: model, tracker: tracker}
}

// GenerateChat implements collaborator.TextModel.
func (p *InstrumentedTextModel) GenerateChat(ctx context.Context, system, user string, opts collaborator.CompletionOptions) (*collaborator.CompletionResult, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "collaborator.text_model.generate_chat",
		trace.WithAttributes(attribute.String("imagegen.model", p.model)),
	)
	defer span.End()

	start := time.Now()
	result, err := p.inner.GenerateChat(ctx, system, user, opts)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	promobs.RecordCollaboratorCall("text_model", status, time.Since(start))

	if err == nil && p.tracker != nil {
		p.tracker.Record("text_model", "generate_chat", cost.Usage{
			Model:        p.model,
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
			TotalTokens:  result.Usage.TotalTokens,
		})
	}

	return result, err
}
