// Package cost prices and accumulates provider token usage across a
// session: per-call cost calculation (adapted from the text-model cost
// calculator) plus a Tracker that folds usage into the metadata
// tracker's tokens.json shape.
package cost

import (
	"fmt"
	"strings"
	"sync"
)

// ModelPricing contains pricing information for a specific model.
type ModelPricing struct {
	Model           string
	InputPer1M      float64 // cost per 1M input tokens in USD
	OutputPer1M     float64 // cost per 1M output tokens in USD
	CachedPer1M     float64 // cost per 1M cached input tokens, if supported
	SupportsCaching bool
}

// Usage represents token usage for a single collaborator call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	TotalTokens  int
}

// Cost represents the calculated cost for a Usage.
type Cost struct {
	InputCost  float64
	OutputCost float64
	CachedCost float64
	TotalCost  float64
	Currency   string
}

// Calculator prices Usage records against a per-model pricing table.
type Calculator struct {
	pricing map[string]*ModelPricing
	mu      sync.RWMutex
}

// NewCalculator creates a Calculator preloaded with pricing for the text
// and vision models this module wires, plus zero-cost locally hosted
// services. Image-generation models have no entry.
func NewCalculator() *Calculator {
	c := &Calculator{pricing: make(map[string]*ModelPricing)}
	c.loadDefaultPricing()
	return c
}

// loadDefaultPricing initializes pricing for the text and vision models
// this module's provider adapters call; image-generation models are not
// priced. Prices as of early 2026; update periodically.
func (c *Calculator) loadDefaultPricing() {
	models := []*ModelPricing{
		// OpenAI text models (refinement / combine prompts)
		{Model: "gpt-4o", InputPer1M: 2.5, OutputPer1M: 10.0, CachedPer1M: 1.25, SupportsCaching: true},
		{Model: "gpt-4o-mini", InputPer1M: 0.15, OutputPer1M: 0.60, CachedPer1M: 0.075, SupportsCaching: true},
		{Model: "gpt-4-turbo", InputPer1M: 10.0, OutputPer1M: 30.0},

		// Gemini vision-language comparator
		{Model: "gemini-1.5-pro", InputPer1M: 1.25, OutputPer1M: 5.0, CachedPer1M: 0.3125, SupportsCaching: true},
		{Model: "gemini-1.5-flash", InputPer1M: 0.075, OutputPer1M: 0.3, CachedPer1M: 0.01875, SupportsCaching: true},
		{Model: "gemini-2.0-flash", InputPer1M: 0.1, OutputPer1M: 0.4},

		// Locally hosted text/vision services behind the supervisor (C1):
		// zero marginal cost, still tracked for token accounting.
		{Model: "local/llama", InputPer1M: 0.0, OutputPer1M: 0.0},
		{Model: "local/qwen-vl", InputPer1M: 0.0, OutputPer1M: 0.0},
	}
	for _, pricing := range models {
		c.pricing[pricing.Model] = pricing
	}
}

// AddPricing adds or updates pricing for a model.
func (c *Calculator) AddPricing(pricing *ModelPricing) {
	if pricing == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[pricing.Model] = pricing
}

// GetPricing retrieves pricing for a model, falling back to the longest
// matching prefix (e.g. "gpt-4o-2026-01-01" matches "gpt-4o").
func (c *Calculator) GetPricing(model string) (*ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.pricing[model]; ok {
		cp := *p
		return &cp, true
	}

	var keys []string
	for k := range c.pricing {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if len(keys[i]) < len(keys[j]) {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	for _, key := range keys {
		if strings.HasPrefix(model, key) {
			cp := *c.pricing[key]
			return &cp, true
		}
	}
	return nil, false
}

// Calculate computes the cost for the given usage.
func (c *Calculator) Calculate(usage *Usage) (*Cost, error) {
	pricing, ok := c.GetPricing(usage.Model)
	if !ok {
		return nil, fmt.Errorf("no pricing found for model: %s", usage.Model)
	}

	cost := &Cost{Currency: "USD"}
	if usage.InputTokens > 0 {
		cost.InputCost = (float64(usage.InputTokens) / 1_000_000) * pricing.InputPer1M
	}
	if usage.OutputTokens > 0 {
		cost.OutputCost = (float64(usage.OutputTokens) / 1_000_000) * pricing.OutputPer1M
	}
	if usage.CachedTokens > 0 && pricing.SupportsCaching {
		cost.CachedCost = (float64(usage.CachedTokens) / 1_000_000) * pricing.CachedPer1M
	}
	cost.TotalCost = cost.InputCost + cost.OutputCost + cost.CachedCost
	return cost, nil
}
