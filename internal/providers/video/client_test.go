package video

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"mediagen/internal/domain"
	"mediagen/internal/jobs"
)

func newTestClient(t *testing.T, srv *httptest.Server, key string) *Client {
	t.Helper()
	client, err := NewClient(Options{APIKey: key, BaseURL: srv.URL, Model: "wan-video", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreatePayload(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predictions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "secret")
	st, err := client.Create(context.Background(), jobs.CreateParams{Prompt: " fox ", DurationSeconds: 5, AspectRatio: "16:9", SourceImage: "https://img/src.png"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.ID != "pred-1" || st.State != jobs.RemoteStarting {
		t.Fatalf("unexpected status: %+v", st)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["version"] != "wan-video" {
		t.Fatalf("version = %v", gotBody["version"])
	}
	input, _ := gotBody["input"].(map[string]any)
	if input["prompt"] != "fox" || input["duration"] != float64(5) || input["aspect_ratio"] != "16:9" || input["image"] != "https://img/src.png" {
		t.Fatalf("unexpected input: %v", input)
	}
	if _, ok := input["negative_prompt"]; ok {
		t.Fatal("empty negative prompt should be omitted")
	}
}

func TestCreateSynchronousCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"succeeded","output":["https://cdn/a.mp4","https://cdn/b.mp4"]}`))
	}))
	defer srv.Close()

	st, err := newTestClient(t, srv, "k").Create(context.Background(), jobs.CreateParams{Prompt: "p"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.State != jobs.RemoteSucceeded || st.Output != "https://cdn/a.mp4" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStatusParsesProgressAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predictions/run":
			_, _ = w.Write([]byte(`{"id":"run","status":"processing","logs":"step 1 10%\nstep 2 42%\n"}`))
		case "/predictions/bad":
			_, _ = w.Write([]byte(`{"id":"bad","status":"failed","error":"out of memory"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	client := newTestClient(t, srv, "k")

	st, err := client.Status(context.Background(), "run")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != jobs.RemoteProcessing || st.Progress == nil || *st.Progress != 0.42 {
		t.Fatalf("unexpected status: %+v", st)
	}

	st, err = client.Status(context.Background(), "bad")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != jobs.RemoteFailed || st.Error != "out of memory" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"invalid token"}`, domain.CodeConfiguration},
		{"rate", http.StatusTooManyRequests, `{"detail":"slow down"}`, domain.CodeRateLimited},
		{"safety", http.StatusUnprocessableEntity, `{"detail":"prompt flagged as NSFW"}`, domain.CodeContentRejected},
		{"server", http.StatusInternalServerError, `oops`, domain.CodeBackend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "12")
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			_, err := newTestClient(t, srv, "k").Status(context.Background(), "x")
			if got := domain.ErrorCode(err); got != tc.code {
				t.Fatalf("code = %s, want %s (%v)", got, tc.code, err)
			}
		})
	}
}

func TestMissingKeyIsConfigurationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a key")
	}))
	defer srv.Close()
	_, err := newTestClient(t, srv, "").Create(context.Background(), jobs.CreateParams{Prompt: "p"})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestMapState(t *testing.T) {
	cases := map[string]jobs.RemoteState{
		"starting":   jobs.RemoteStarting,
		"queued":     jobs.RemoteStarting,
		"processing": jobs.RemoteProcessing,
		"succeeded":  jobs.RemoteSucceeded,
		"failed":     jobs.RemoteFailed,
		"canceled":   jobs.RemoteCanceled,
	}
	for in, want := range cases {
		if got := mapState(in); got != want {
			t.Fatalf("mapState(%q) = %s, want %s", in, got, want)
		}
	}
}
