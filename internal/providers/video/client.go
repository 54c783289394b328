package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/jobs"
	"mediagen/internal/providers/apierr"
)

// ProviderName identifies this client in typed errors.
const ProviderName = "video"

// Options configures the predictions client.
type Options struct {
	APIKey string
	// Key resolves the API key per call when set; APIKey is ignored.
	Key            credentials.KeyFunc
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to a predictions-style video generation API. Each call is a
// single request; polling is driven by the scheduler.
type Client struct {
	key        credentials.KeyFunc
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt         string  `json:"prompt"`
	Duration       float64 `json:"duration,omitempty"`
	AspectRatio    string  `json:"aspect_ratio,omitempty"`
	Image          string  `json:"image,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	Logs   string          `json:"logs"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// NewClient constructs a client with defaults for anything left unset.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("video: invalid base url: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	key := opts.Key
	if key == nil {
		static := strings.TrimSpace(opts.APIKey)
		key = func(context.Context) (string, error) { return static, nil }
	}
	return &Client{
		key:        key,
		baseURL:    baseURL,
		model:      strings.TrimSpace(opts.Model),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model version.
func (c *Client) Model() string {
	return c.model
}

// Create submits a new prediction. The returned status may already be
// terminal when the backend finished synchronously.
func (c *Client) Create(ctx context.Context, params jobs.CreateParams) (jobs.RemoteStatus, error) {
	prompt := strings.TrimSpace(params.Prompt)
	if prompt == "" {
		return jobs.RemoteStatus{}, &domain.ValidationError{Field: "prompt", Message: "is required"}
	}
	model := strings.TrimSpace(params.Model)
	if model == "" {
		model = c.model
	}
	payload := predictionRequest{
		Version: model,
		Input: predictionInput{
			Prompt:         prompt,
			Duration:       params.DurationSeconds,
			AspectRatio:    params.AspectRatio,
			Image:          strings.TrimSpace(params.SourceImage),
			NegativePrompt: strings.TrimSpace(params.NegativePrompt),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return jobs.RemoteStatus{}, fmt.Errorf("video: encode request: %w", err)
	}
	var out prediction
	if err := c.do(ctx, http.MethodPost, "/predictions", body, &out); err != nil {
		return jobs.RemoteStatus{}, err
	}
	c.logger.Debug().Str("remote_id", out.ID).Str("status", out.Status).Msg("video: prediction created")
	return out.status(), nil
}

// Status fetches the current state of a prediction.
func (c *Client) Status(ctx context.Context, remoteID string) (jobs.RemoteStatus, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return jobs.RemoteStatus{}, &domain.ValidationError{Field: "remote_id", Message: "is required"}
	}
	var out prediction
	if err := c.do(ctx, http.MethodGet, "/predictions/"+url.PathEscape(remoteID), nil, &out); err != nil {
		return jobs.RemoteStatus{}, err
	}
	if out.ID == "" {
		out.ID = remoteID
	}
	return out.status(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	key, err := c.key(ctx)
	if err != nil {
		return &domain.ConfigurationError{Provider: ProviderName, Err: fmt.Errorf("resolve api key: %w", err)}
	}
	if key = strings.TrimSpace(key); key == "" {
		return &domain.ConfigurationError{Provider: ProviderName, Err: errors.New("api key is not set")}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.Transport(ProviderName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Transport(ProviderName, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		_ = json.Unmarshal(raw, &detail)
		msg := strings.TrimSpace(detail.Detail)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return apierr.FromResponse(ProviderName, resp.StatusCode, resp.Header, msg)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.BackendError{Provider: ProviderName, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (p prediction) status() jobs.RemoteStatus {
	st := jobs.RemoteStatus{
		ID:     p.ID,
		State:  mapState(p.Status),
		Output: firstOutput(p.Output),
		Error:  rawString(p.Error),
	}
	if pct, ok := parseLogProgress(p.Logs); ok {
		st.Progress = &pct
	}
	return st
}

func mapState(s string) jobs.RemoteState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "succeeded", "successful", "completed":
		return jobs.RemoteSucceeded
	case "failed", "error":
		return jobs.RemoteFailed
	case "canceled", "cancelled", "aborted":
		return jobs.RemoteCanceled
	case "processing", "running":
		return jobs.RemoteProcessing
	default:
		return jobs.RemoteStarting
	}
}

// firstOutput accepts either a single url or a list of urls.
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// parseLogProgress returns the last percentage printed in the logs as a
// fraction.
func parseLogProgress(logs string) (float64, bool) {
	matches := percentPattern.FindAllStringSubmatch(logs, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || n > 100 {
		return 0, false
	}
	return float64(n) / 100, true
}

var _ jobs.Backend = (*Client)(nil)
