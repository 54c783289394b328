package image

import (
	"context"

	"mediagen/internal/providers/qwen"
)

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	Model() string
}

// QwenGenerator serves the hd tier through DashScope's Qwen image model.
type QwenGenerator struct {
	client qwenImageClient
}

// NewQwenGenerator wraps a Qwen client.
func NewQwenGenerator(client qwenImageClient) *QwenGenerator {
	return &QwenGenerator{client: client}
}

func (g *QwenGenerator) Name() string { return qwen.ProviderName }

// Generate fulfils the Generator interface.
func (g *QwenGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	asset, err := g.client.GenerateImage(ctx, qwen.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Size:           AspectRatioSize(req.AspectRatio),
		RequestID:      req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{
		Format:    asset.Format,
		Width:     asset.Width,
		Height:    asset.Height,
		Data:      asset.Data,
		Provider:  qwen.ProviderName,
		Model:     g.client.Model(),
		SourceURL: asset.URL,
	}, nil
}

var _ Generator = (*QwenGenerator)(nil)
