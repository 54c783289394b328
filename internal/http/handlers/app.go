package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
	"mediagen/internal/infra"
	"mediagen/internal/jobs"
	"mediagen/internal/providers/image"
)

// VideoJobs is the job service used by the video and job endpoints.
type VideoJobs interface {
	CreateVideo(ctx context.Context, req jsoncfg.VideoRequest) (domain.Job, error)
	Get(id string) (domain.Job, error)
	List() []domain.Job
	Cancel(id string) (domain.Job, error)
	RemoteStatus(ctx context.Context, remoteID string) (jobs.RemoteStatus, error)
}

// ImageGenerator produces one image per request.
type ImageGenerator interface {
	Generate(ctx context.Context, req image.GenerateRequest) (*image.Asset, error)
}

// RecordGate stores finished records at most once.
type RecordGate interface {
	TrySave(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error)
	Forget(id string)
}

// AssetStore keeps generated image bytes.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
	Delete(ctx context.Context, key string) error
}

// RecordStore is a sink records can be looked up and removed from.
type RecordStore interface {
	Get(ctx context.Context, id string) (*domain.PersistenceRecord, error)
	Delete(ctx context.Context, id string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const maxBodyBytes = 1 << 20

// App bundles the dependencies of every HTTP handler.
type App struct {
	Config *infra.Config
	Logger zerolog.Logger

	Jobs   VideoJobs
	Images ImageGenerator
	Gate   RecordGate
	Files  AssetStore
	// Local and Durable are consulted when an image is removed from history.
	// Either may be nil.
	Local   RecordStore
	Durable RecordStore
	DB      Pinger

	now func() time.Time
}

func (a *App) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Message: "invalid payload"}
	}
	return nil
}
