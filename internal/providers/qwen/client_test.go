package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"mediagen/internal/domain"
)

const generationPath = "/api/v1/services/aigc/multimodal-generation/generation"

func newTestClient(t *testing.T, transport http.RoundTripper, key string) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:       key,
		Model:        "qwen-image-plus",
		PromptExtend: true,
		HTTPClient:   &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGenerateImagePayload(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := newTestClient(t, transport, "test")
	transport.setJSONResponse(generationPath, http.StatusOK, map[string]any{
		"output": map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": []any{
							map[string]any{"image": "https://example.com/generated/out.png"},
						},
					},
				},
			},
		},
		"usage":      map[string]any{"width": 1024, "height": 1024},
		"request_id": "req-123",
	})
	transport.setBinaryResponse("https://example.com/generated/out.png", []byte{0x89, 'P', 'N', 'G'})

	asset, err := client.GenerateImage(context.Background(), ImageRequest{
		Prompt:         "  a lighthouse at dusk ",
		NegativePrompt: "text",
		Size:           "1024*1024",
	})
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if asset.URL != "https://example.com/generated/out.png" || len(asset.Data) == 0 || asset.Width != 1024 {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if got := transport.lastAuth; got != "Bearer test" {
		t.Fatalf("authorization header = %q", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	params := payload["parameters"].(map[string]any)
	if params["size"] != "1024*1024" || params["negative_prompt"] != "text" || params["prompt_extend"] != true {
		t.Fatalf("unexpected parameters: %v", params)
	}
	content := payload["input"].(map[string]any)["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if text := content[0].(map[string]any)["text"]; text != "a lighthouse at dusk" {
		t.Fatalf("prompt = %v", text)
	}
}

func TestGenerateImageWithoutKey(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := newTestClient(t, transport, " ")
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if transport.calls != 0 {
		t.Fatal("no request should be sent without a key")
	}
}

func TestGenerateImageKeyFunc(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client, err := NewClient(Options{
		Key:        func(context.Context) (string, error) { return "", errors.New("db down") },
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); domain.ErrorCode(err) != domain.CodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateImageErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		header http.Header
		want   string
	}{
		{"moderation", http.StatusBadRequest, map[string]any{"code": "DataInspectionFailed", "message": "Input data may contain inappropriate content."}, nil, domain.CodeContentRejected},
		{"throttled", http.StatusTooManyRequests, map[string]any{"code": "Throttling.RateQuota", "message": "Requests rate limit exceeded"}, http.Header{"Retry-After": []string{"7"}}, domain.CodeRateLimited},
		{"bad key", http.StatusUnauthorized, map[string]any{"code": "InvalidApiKey", "message": "Invalid API-key provided."}, nil, domain.CodeConfiguration},
		{"server", http.StatusInternalServerError, map[string]any{"code": "InternalError", "message": "oops"}, nil, domain.CodeBackend},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			transport := &captureTransport{responses: map[string]responseStub{}}
			client := newTestClient(t, transport, "test")
			transport.setJSONResponse(generationPath, tc.status, tc.body)
			if tc.header != nil {
				stub := transport.responses[generationPath]
				for k, v := range tc.header {
					stub.header[k] = v
				}
			}
			_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
			if got := domain.ErrorCode(err); got != tc.want {
				t.Fatalf("code = %q, want %q (%v)", got, tc.want, err)
			}
			var rateErr *domain.RateLimitError
			if errors.As(err, &rateErr) && rateErr.RetryAfter != 7*time.Second {
				t.Fatalf("RetryAfter = %s", rateErr.RetryAfter)
			}
		})
	}
}

func TestGenerateImageModerationInBody(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := newTestClient(t, transport, "test")
	transport.setJSONResponse(generationPath, http.StatusOK, map[string]any{"code": "DataInspectionFailed", "message": "Output data may contain inappropriate content."})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	var rejected *domain.ContentRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ContentRejectedError, got %v", err)
	}
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
	calls     int
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	if req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
		c.lastAuth = req.Header.Get("Authorization")
		if stub, ok := c.responses[req.URL.Path]; ok {
			return stub.toResponse(), nil
		}
	}
	if req.Method == http.MethodGet {
		if stub, ok := c.responses[req.URL.String()]; ok {
			return stub.toResponse(), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (c *captureTransport) setBinaryResponse(url string, data []byte) {
	c.responses[url] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"image/png"}},
		body:   data,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
