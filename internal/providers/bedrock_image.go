package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/jflournoy/image-gen-pipe-v2-sub003/internal/collaborator"
)

// BedrockImageGenerator implements collaborator.ImageGenerator against AWS
// Bedrock's InvokeModel API, targeting Titan Image Generator. Generated
// images are decoded and written under outDir as PNG files; ImageRef is the
// resulting local path, the shape every collaborator.VisionComparator and
// internal/rank expect.
type BedrockImageGenerator struct {
	client  *bedrockruntime.Client
	modelID string
	outDir  string
	counter atomic.Int64
}

// NewBedrockImageGenerator builds a BedrockImageGenerator for the given
// region and Titan model ID, writing generated images under outDir. endpoint
// overrides the service's base URL when non-empty, for pointing at a test
// double.
func NewBedrockImageGenerator(ctx context.Context, region, modelID, outDir, endpoint string) (*BedrockImageGenerator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock image generator: load aws config: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("bedrock image generator: create output dir: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockImageGenerator{
		client:  bedrockruntime.NewFromConfig(cfg, clientOpts...),
		modelID: modelID,
		outDir:  outDir,
	}, nil
}

type titanImageRequest struct {
	TaskType          string                  `json:"taskType"`
	TextToImageParams titanTextToImageParams  `json:"textToImageParams"`
	ImageGenConfig    titanImageGenConfig     `json:"imageGenerationConfig"`
}

type titanTextToImageParams struct {
	Text string `json:"text"`
}

type titanImageGenConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	CfgScale       float64 `json:"cfgScale"`
}

type titanImageResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// Generate implements collaborator.ImageGenerator.
func (g *BedrockImageGenerator) Generate(ctx context.Context, prompt string, opts collaborator.ImageGenerationOptions) (*collaborator.GeneratedImage, error) {
	height, width := 1024, 1024
	cfgScale := 8.0
	if opts.Extra != nil {
		if h, ok := opts.Extra["height"].(int); ok {
			height = h
		}
		if w, ok := opts.Extra["width"].(int); ok {
			width = w
		}
		if c, ok := opts.Extra["cfg_scale"].(float64); ok {
			cfgScale = c
		}
	}

	body, err := json.Marshal(titanImageRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: titanTextToImageParams{Text: prompt},
		ImageGenConfig: titanImageGenConfig{
			NumberOfImages: 1,
			Height:         height,
			Width:          width,
			CfgScale:       cfgScale,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock image generator: build request: %w", err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock image generator: invoke model: %w", err)
	}

	var resp titanImageResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("bedrock image generator: parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("bedrock image generator: %s", resp.Error)
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("bedrock image generator: no images in response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("bedrock image generator: decode image: %w", err)
	}

	n := g.counter.Add(1)
	path := filepath.Join(g.outDir, fmt.Sprintf("candidate-%d.png", n))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("bedrock image generator: write image: %w", err)
	}

	return &collaborator.GeneratedImage{
		ImageRef: path,
		Metadata: map[string]any{"model_id": g.modelID, "prompt": strings.TrimSpace(prompt)},
	}, nil
}
