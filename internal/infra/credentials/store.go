package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderQwen   = "qwen"
	ProviderVideo  = "video"
)

// Providers lists the names accepted by SetToken.
var Providers = []string{ProviderGemini, ProviderQwen, ProviderVideo}

// KeyFunc resolves an API key at call time. An empty key with a nil error
// means the provider is not configured.
type KeyFunc func(ctx context.Context) (string, error)

// Store keeps provider API keys in the integration_tokens table.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores or replaces the key for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !known(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, token, map[string]any{"source": "cli"})
}

// Key returns a KeyFunc that prefers the static key and falls back to the
// stored one. A nil store only serves the static key.
func (s *Store) Key(provider, static string) KeyFunc {
	static = strings.TrimSpace(static)
	return func(ctx context.Context) (string, error) {
		if static != "" || s == nil {
			return static, nil
		}
		return s.Token(ctx, provider)
	}
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func known(provider string) bool {
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}
