package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mediagen/internal/domain"
)

func newServerClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGenerateImageInlineData(t *testing.T) {
	var got geminiGenerateContentRequest
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"text": "here you go"},
					map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString([]byte("not-a-real-png"))}},
				}},
				"finishReason": "STOP",
			}},
		})
	})

	asset, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "a red bicycle", NegativePrompt: "people", AspectRatio: "16:9"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(asset.Data) != "not-a-real-png" || asset.Format != "image/png" {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if asset.Width != 1344 || asset.Height != 768 {
		t.Fatalf("fallback dimensions = %dx%d", asset.Width, asset.Height)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ImageConfig.AspectRatio != "16:9" {
		t.Fatalf("aspect ratio not sent: %+v", got.GenerationConfig)
	}
	if text := got.Contents[0].Parts[0].Text; text != "a red bicycle\nAvoid: people" {
		t.Fatalf("prompt = %q", text)
	}
}

func TestGenerateImageSafetyBlock(t *testing.T) {
	for _, body := range []map[string]any{
		{"promptFeedback": map[string]any{"blockReason": "SAFETY"}},
		{"candidates": []any{map[string]any{"finishReason": "IMAGE_SAFETY"}}},
	} {
		client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(body)
		})
		_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
		var rejected *domain.ContentRejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("expected ContentRejectedError, got %v", err)
		}
	}
}

func TestGenerateImageErrors(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	})
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); domain.ErrorCode(err) != domain.CodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}

	empty := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	if _, err := empty.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); domain.ErrorCode(err) != domain.CodeBackend {
		t.Fatalf("expected backend error, got %v", err)
	}

	noKey, _ := NewClient(Options{})
	if _, err := noKey.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); domain.ErrorCode(err) != domain.CodeConfiguration {
		t.Fatalf("expected configuration error without key, got %v", err)
	}
}
