package image

import (
	"context"

	"mediagen/internal/providers/genai"
)

type geminiImageClient interface {
	GenerateImage(context.Context, genai.ImageRequest) (*genai.ImageAsset, error)
	Model() string
}

// GeminiGenerator serves the standard tier through Gemini.
type GeminiGenerator struct {
	client geminiImageClient
}

func NewGeminiGenerator(client geminiImageClient) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Name() string { return genai.ProviderName }

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		Locale:         req.Locale,
		RequestID:      req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{
		Format:   asset.Format,
		Width:    asset.Width,
		Height:   asset.Height,
		Data:     asset.Data,
		Provider: genai.ProviderName,
		Model:    g.client.Model(),
	}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
