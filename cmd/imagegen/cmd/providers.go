package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/cost"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/providers"
	"github.com/jflournoy/image-gen-pipe-v2-sub003/pkg/config"
)

func stringOption(opts map[string]any, key, fallback string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatOption(opts map[string]any, key string, fallback float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func intOption(opts map[string]any, key string, fallback int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// buildTextModel resolves cfg.TextModel into a collaborator.TextModel,
// wrapped for cost/metrics instrumentation.
func buildTextModel(cfg *config.SessionConfig, tracker *cost.Tracker) (collaborator.TextModel, error) {
	switch cfg.TextModel.Provider {
	case "", "openai":
		model := stringOption(cfg.TextModel.Options, "model", "gpt-4o-mini")
		baseURL := stringOption(cfg.TextModel.Options, "base_url", "")
		apiKey := cfg.OpenAIKey
		if apiKey == "" {
			return nil, fmt.Errorf("text_model: openai_key not set")
		}
		return providers.NewInstrumentedTextModel(
			providers.NewOpenAITextModel(apiKey, baseURL, model), model, tracker,
		), nil
	default:
		return nil, fmt.Errorf("text_model: unsupported provider %q", cfg.TextModel.Provider)
	}
}

// buildVisionComparator resolves cfg.VisionComparator into a
// collaborator.VisionComparator.
func buildVisionComparator(ctx context.Context, cfg *config.SessionConfig) (collaborator.VisionComparator, error) {
	switch cfg.VisionComparator.Provider {
	case "", "genai", "gemini":
		model := stringOption(cfg.VisionComparator.Options, "model", "gemini-2.0-flash")
		apiKey := cfg.GoogleKey
		if apiKey == "" {
			return nil, fmt.Errorf("vision_comparator: google_key not set")
		}
		comparator, err := providers.NewGenaiVisionComparator(ctx, apiKey, model)
		if err != nil {
			return nil, err
		}
		rps := floatOption(cfg.VisionComparator.Options, "requests_per_second", 2)
		burst := intOption(cfg.VisionComparator.Options, "burst", 1)
		return providers.NewRateLimitedVisionComparator(comparator, rps, burst), nil
	default:
		return nil, fmt.Errorf("vision_comparator: unsupported provider %q", cfg.VisionComparator.Provider)
	}
}

// buildImageGenerator resolves cfg.ImageGenerator into a
// collaborator.ImageGenerator.
func buildImageGenerator(ctx context.Context, cfg *config.SessionConfig, sessionDir string) (collaborator.ImageGenerator, error) {
	switch cfg.ImageGenerator.Provider {
	case "", "bedrock":
		region := stringOption(cfg.ImageGenerator.Options, "region", "us-east-1")
		modelID := stringOption(cfg.ImageGenerator.Options, "model", "amazon.titan-image-generator-v1")
		endpoint := stringOption(cfg.ImageGenerator.Options, "endpoint", "")
		return providers.NewBedrockImageGenerator(ctx, region, modelID, sessionDir, endpoint)
	default:
		return nil, fmt.Errorf("image_generator: unsupported provider %q", cfg.ImageGenerator.Provider)
	}
}

// newSessionID generates a session identifier in the "ses-<uuid>" shape.
func newSessionID() string {
	return "ses-" + uuid.NewString()
}
