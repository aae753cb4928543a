package cost

import (
	"sync"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/metadata"
)

// Tracker accumulates token usage across a session, one record per
// collaborator call, and exports the totals in the shape
// internal/metadata.Tracker.PersistTokens expects.
type Tracker struct {
	mu      sync.Mutex
	calc    *Calculator
	records []metadata.TokenRecord
	totals  map[string]int
	costs   map[string]float64
}

// NewTracker builds a Tracker backed by calc. Pass nil to use a
// Calculator preloaded with this module's default pricing.
func NewTracker(calc *Calculator) *Tracker {
	if calc == nil {
		calc = NewCalculator()
	}
	return &Tracker{
		calc:   calc,
		totals: make(map[string]int),
		costs:  make(map[string]float64),
	}
}

// Record logs one collaborator call's token usage under operation (e.g.
// "refine_what", "combine_prompt") and provider (e.g. "openai").
// Unpriced models are recorded for token accounting with zero cost
// rather than rejected, since cost tracking is a side channel, not a
// gate on the beam search proceeding.
func (t *Tracker) Record(provider, operation string, usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost, err := t.calc.Calculate(&usage)
	var totalCost float64
	if err == nil {
		totalCost = cost.TotalCost
	}

	t.records = append(t.records, metadata.TokenRecord{
		Provider:  provider,
		Operation: operation,
		Tokens:    usage.TotalTokens,
		Metadata: map[string]any{
			"input_tokens":  usage.InputTokens,
			"output_tokens": usage.OutputTokens,
			"model":         usage.Model,
		},
	})
	t.totals[operation] += usage.TotalTokens
	t.costs[operation] += totalCost
}

// Totals returns the accumulated TokenTotals and CostTotals, plus the raw
// per-call records, ready for metadata.Tracker.PersistTokens.
func (t *Tracker) Totals() (metadata.TokenTotals, metadata.CostTotals, []metadata.TokenRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	totals := metadata.TokenTotals{PerOperation: make(map[string]int, len(t.totals))}
	cost := metadata.CostTotals{PerOperation: make(map[string]float64, len(t.costs))}

	for op, n := range t.totals {
		totals.PerOperation[op] = n
		totals.TotalTokens += n
	}
	for op, c := range t.costs {
		cost.PerOperation[op] = c
		cost.Total += c
	}

	records := make([]metadata.TokenRecord, len(t.records))
	copy(records, t.records)

	return totals, cost, records
}
