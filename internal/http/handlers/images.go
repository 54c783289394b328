package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
	"mediagen/internal/middleware"
	"mediagen/internal/providers/image"
)

// persistTimeout bounds the record write, which outlives a disconnected client.
const persistTimeout = 30 * time.Second

type imageResponse struct {
	Record    domain.PersistenceRecord `json:"record"`
	Provider  string                   `json:"provider"`
	Width     int                      `json:"width"`
	Height    int                      `json:"height"`
	Persisted bool                     `json:"persisted"`
}

// ImagesCreate generates one image, stores its bytes and records it. A
// persistence failure is reported in the body but does not fail the request.
func (a *App) ImagesCreate(w http.ResponseWriter, r *http.Request) {
	var req jsoncfg.ImageRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	req.Normalize(middleware.LocaleFromContext(r.Context()))
	if err := req.Validate(); err != nil {
		a.fail(w, r, err)
		return
	}

	id := uuid.NewString()
	started := a.clock().UTC()
	asset, err := a.Images.Generate(r.Context(), image.GenerateRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		Quality:        req.Quality,
		Locale:         req.Locale,
		RequestID:      middleware.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if asset == nil || len(asset.Data) == 0 {
		a.fail(w, r, &domain.BackendError{Provider: "image", Err: errors.New("empty image")})
		return
	}

	key := imageKey(id, started.Format("2006/01/02"), asset.Format)
	stored, err := a.Files.Write(r.Context(), key, asset.Data)
	if err != nil {
		a.fail(w, r, fmt.Errorf("store image: %w", err))
		return
	}
	completed := a.clock().UTC()
	rec := domain.PersistenceRecord{
		ID:          id,
		Kind:        domain.JobKindImage,
		URL:         a.Files.URL(stored),
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Model:       asset.Model,
		Status:      domain.JobStatusCompleted,
		CreatedAt:   started,
		CompletedAt: &completed,
	}

	resp := imageResponse{Record: rec, Provider: asset.Provider, Width: asset.Width, Height: asset.Height}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), persistTimeout)
	defer cancel()
	saved, err := a.Gate.TrySave(persistCtx, rec)
	switch {
	case err != nil:
		a.requestLogger(r).Warn().Err(err).Str("id", id).Msg("http: image record not persisted")
	case saved != nil:
		resp.Record = *saved
		resp.Persisted = true
	}
	a.json(w, http.StatusCreated, resp)
}

// ImageDelete removes an image from history: its record in every store, its
// file, and its id from the gate so that a later save writes again.
func (a *App) ImageDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := uuid.Parse(id); err != nil {
		a.fail(w, r, &domain.ValidationError{Field: "id", Message: "must be a uuid"})
		return
	}
	ctx := r.Context()
	rec := a.lookupRecord(r, id)
	if rec == nil {
		a.fail(w, r, fmt.Errorf("image %s: %w", id, domain.ErrNotFound))
		return
	}

	for _, store := range []RecordStore{a.Local, a.Durable} {
		if store == nil {
			continue
		}
		if err := store.Delete(ctx, id); err != nil {
			a.fail(w, r, fmt.Errorf("delete record: %w", err))
			return
		}
	}
	a.Gate.Forget(id)
	if key := a.keyFromURL(rec.URL); key != "" {
		if err := a.Files.Delete(ctx, key); err != nil {
			a.requestLogger(r).Warn().Err(err).Str("id", id).Msg("http: image file not removed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) lookupRecord(r *http.Request, id string) *domain.PersistenceRecord {
	for _, store := range []RecordStore{a.Local, a.Durable} {
		if store == nil {
			continue
		}
		rec, err := store.Get(r.Context(), id)
		if err == nil && rec != nil {
			return rec
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.requestLogger(r).Warn().Err(err).Str("id", id).Msg("http: record lookup failed")
		}
	}
	return nil
}

// keyFromURL recovers the storage key of a URL produced by Files.URL.
func (a *App) keyFromURL(u string) string {
	prefix := a.Files.URL("")
	if prefix == "" || !strings.HasPrefix(u, prefix) {
		return ""
	}
	return strings.TrimPrefix(u, prefix)
}

func imageKey(id, day, mime string) string {
	return fmt.Sprintf("images/%s/%s.%s", day, id, image.Extension(mime))
}
