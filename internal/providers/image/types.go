package image

import (
	"context"
	"strings"
)

// Quality tiers accepted by Chain.Choose.
const (
	TierHD       = "hd"
	TierStandard = "standard"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	Quality        string
	Locale         string
	RequestID      string
}

// Asset represents a generated image.
type Asset struct {
	Format string
	Width  int
	Height int
	Data   []byte
	// Provider and Model record who produced the asset.
	Provider string
	Model    string
	// SourceURL is the provider's own download link, when it gave one.
	SourceURL string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// Extension returns the file extension for an asset's MIME type.
func Extension(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "jpg"
	case strings.Contains(mime, "webp"):
		return "webp"
	default:
		return "png"
	}
}

// AspectRatioSize maps an aspect ratio string to the DashScope supported size token.
func AspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	default:
		return "1328*1328"
	}
}
