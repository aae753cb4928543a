package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
)

// GenaiVisionComparator implements collaborator.VisionComparator against a
// Gemini multimodal model: both candidate images and the user prompt are
// sent in one call, and the model is asked to return a JSON verdict.
type GenaiVisionComparator struct {
	client *genai.Client
	model  string
}

// NewGenaiVisionComparator builds a GenaiVisionComparator using the given
// API key and model name (e.g. "gemini-2.0-flash").
func NewGenaiVisionComparator(ctx context.Context, apiKey, model string) (*GenaiVisionComparator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("genai vision comparator: new client: %w", err)
	}
	return &GenaiVisionComparator{client: client, model: model}, nil
}

const visionComparePrompt = `You are judging two candidate images against a target prompt.
Prompt: %q

Compare image A and image B on alignment to the prompt and aesthetic quality.
Respond with ONLY a JSON object of this exact shape, no surrounding text:
{
  "choice": "A" | "B" | "TIE",
  "explanation": string,
  "confidence": number between 0 and 1,
  "rank_a": {"alignment": number, "aesthetics": number},
  "rank_b": {"alignment": number, "aesthetics": number},
  "winner_strengths": [string],
  "loser_weaknesses": [string],
  "improvement_suggestion": string
}`

// Compare implements collaborator.VisionComparator.
func (c *GenaiVisionComparator) Compare(ctx context.Context, imageARef, imageBRef, prompt string) (*collaborator.Verdict, error) {
	imgA, err := loadImagePart(imageARef)
	if err != nil {
		return nil, fmt.Errorf("genai vision comparator: load image A: %w", err)
	}
	imgB, err := loadImagePart(imageBRef)
	if err != nil {
		return nil, fmt.Errorf("genai vision comparator: load image B: %w", err)
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: fmt.Sprintf(visionComparePrompt, prompt)},
			{Text: "Image A:"},
			imgA,
			{Text: "Image B:"},
			imgB,
		},
	}}

	model := c.model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("genai vision comparator: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("genai vision comparator: empty response")
	}

	var verdict collaborator.Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &verdict); err != nil {
		return nil, fmt.Errorf("genai vision comparator: parse verdict: %w", err)
	}

	return &verdict, nil
}

func loadImagePart(ref string) (*genai.Part, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, err
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeTypeForRef(ref), Data: data}}, nil
}

func mimeTypeForRef(ref string) string {
	if strings.HasSuffix(ref, ".jpg") || strings.HasSuffix(ref, ".jpeg") {
		return "image/jpeg"
	}
	return "image/png"
}
