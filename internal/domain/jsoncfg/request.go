package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"

	"mediagen/internal/domain"
)

// VideoRequest is the job-creation contract for video generation.
type VideoRequest struct {
	Prompt          string  `json:"prompt"`
	NegativePrompt  string  `json:"negative_prompt"`
	DurationSeconds float64 `json:"duration"`
	AspectRatio     string  `json:"aspect_ratio"`
	SourceImage     string  `json:"source_image"`
	Model           string  `json:"model"`
}

// ImageRequest is the contract for a single image generation.
type ImageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	AspectRatio    string `json:"aspect_ratio"`
	Quality        string `json:"quality"`
	Locale         string `json:"locale"`
}

var videoAspectRatios = map[string]struct{}{
	"16:9": {},
	"9:16": {},
	"1:1":  {},
}

var imageAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

const (
	// DefaultVideoDurationSeconds is used when the request omits a duration.
	DefaultVideoDurationSeconds = 5
	// MaxVideoDurationSeconds is the longest clip the backend accepts.
	MaxVideoDurationSeconds = 20
	DefaultVideoAspectRatio = "16:9"
	DefaultImageAspectRatio = "1:1"
	// QualityHD selects the high-quality image provider.
	QualityHD       = "hd"
	QualityStandard = "standard"
	DefaultLocale   = "en"
	maxPromptLength = 2000
)

// Normalize applies server defaults.
func (r *VideoRequest) Normalize() {
	if r == nil {
		return
	}
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	r.SourceImage = strings.TrimSpace(r.SourceImage)
	r.Model = strings.TrimSpace(r.Model)
	r.AspectRatio = strings.TrimSpace(r.AspectRatio)
	if r.DurationSeconds == 0 {
		r.DurationSeconds = DefaultVideoDurationSeconds
	}
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultVideoAspectRatio
	}
}

// Validate rejects requests that must not reach the backend.
func (r VideoRequest) Validate() error {
	if r.Prompt == "" {
		return &domain.ValidationError{Field: "prompt", Message: "is required"}
	}
	if len(r.Prompt) > maxPromptLength {
		return &domain.ValidationError{Field: "prompt", Message: fmt.Sprintf("must be at most %d characters", maxPromptLength)}
	}
	if r.DurationSeconds < 1 || r.DurationSeconds > MaxVideoDurationSeconds {
		return &domain.ValidationError{Field: "duration", Message: fmt.Sprintf("must be between 1 and %d seconds", MaxVideoDurationSeconds)}
	}
	if _, ok := videoAspectRatios[r.AspectRatio]; !ok {
		return &domain.ValidationError{Field: "aspect_ratio", Message: "must be one of 16:9, 9:16, 1:1"}
	}
	return nil
}

// Normalize applies server defaults; preferredLocale comes from the request
// context when the body does not carry one.
func (r *ImageRequest) Normalize(preferredLocale string) {
	if r == nil {
		return
	}
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	r.AspectRatio = strings.TrimSpace(r.AspectRatio)
	r.Quality = strings.ToLower(strings.TrimSpace(r.Quality))
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultImageAspectRatio
	}
	if r.Quality == "" {
		r.Quality = QualityStandard
	}
	if strings.TrimSpace(r.Locale) == "" {
		if preferredLocale != "" {
			r.Locale = preferredLocale
		} else {
			r.Locale = DefaultLocale
		}
	}
}

// Validate rejects requests that must not reach a provider.
func (r ImageRequest) Validate() error {
	if r.Prompt == "" {
		return &domain.ValidationError{Field: "prompt", Message: "is required"}
	}
	if len(r.Prompt) > maxPromptLength {
		return &domain.ValidationError{Field: "prompt", Message: fmt.Sprintf("must be at most %d characters", maxPromptLength)}
	}
	if _, ok := imageAspectRatios[r.AspectRatio]; !ok {
		return &domain.ValidationError{Field: "aspect_ratio", Message: "must be one of 1:1, 4:3, 3:4, 16:9, 9:16"}
	}
	if r.Quality != QualityHD && r.Quality != QualityStandard {
		return &domain.ValidationError{Field: "quality", Message: "must be hd or standard"}
	}
	return nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
