package image

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Chain picks an image provider by quality tier and decides, per failure
// class, whether a request may hop once from the hd provider to the standard
// one.
type Chain struct {
	hd       Generator
	standard Generator
	logger   zerolog.Logger
}

// NewChain builds a chain. hd may be nil, in which case every tier is served
// by standard.
func NewChain(hd, standard Generator, logger *zerolog.Logger) (*Chain, error) {
	if standard == nil {
		return nil, errors.New("image: standard provider is required")
	}
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = logger.With().Str("component", "image_chain").Logger()
	}
	return &Chain{hd: hd, standard: standard, logger: l}, nil
}

// Choose returns the provider for tier.
func (c *Chain) Choose(tier string) Generator {
	if tier == TierHD && c.hd != nil {
		return c.hd
	}
	return c.standard
}

// OnFailure returns the provider to try next after failed reported err, or
// the error to surface. The standard provider never hands off further.
func (c *Chain) OnFailure(failed Generator, err error) (Generator, error) {
	if failed == c.standard {
		return nil, err
	}
	var (
		cfgErr     *domain.ConfigurationError
		contentErr *domain.ContentRejectedError
		rateErr    *domain.RateLimitError
		validErr   *domain.ValidationError
	)
	switch {
	case errors.As(err, &contentErr), errors.As(err, &rateErr), errors.As(err, &validErr):
		return nil, err
	case errors.As(err, &cfgErr):
		return c.standard, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return c.standard, nil
	}
}

// Generate runs the request through the chosen provider with at most one
// fallback hop.
func (c *Chain) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	primary := c.Choose(req.Quality)
	asset, err := primary.Generate(ctx, req)
	if err == nil {
		return asset, nil
	}
	next, surfaced := c.OnFailure(primary, err)
	if next == nil {
		return nil, surfaced
	}

	log := c.logger.With().Str("request_id", req.RequestID).Str("from", primary.Name()).Str("to", next.Name()).Logger()
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		log.Info().Err(err).Msg("image: provider not configured, using fallback")
	} else {
		log.Warn().Err(err).Msg("image: provider failed, using fallback")
	}

	asset, fallbackErr := next.Generate(ctx, req)
	if fallbackErr == nil {
		return asset, nil
	}
	if errors.As(err, &cfgErr) {
		return nil, fallbackErr
	}
	return nil, &domain.BackendError{Provider: next.Name(), Err: errors.Join(err, fallbackErr)}
}
