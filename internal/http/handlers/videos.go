package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
)

type videoJobResponse struct {
	JobID         string           `json:"job_id"`
	RemoteID      string           `json:"remote_id,omitempty"`
	Status        domain.JobStatus `json:"status"`
	Output        string           `json:"output,omitempty"`
	EnablePolling bool             `json:"enable_polling"`
}

// VideosCreate submits a video job. A backend that finishes synchronously
// yields 200 with the output; otherwise 202 and the client polls.
func (a *App) VideosCreate(w http.ResponseWriter, r *http.Request) {
	var req jsoncfg.VideoRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.checkSourceImage(req.SourceImage); err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := a.Jobs.CreateVideo(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := videoJobResponse{JobID: job.ID, RemoteID: job.RemoteID, Status: job.Status}
	if job.Status == domain.JobStatusCompleted {
		resp.Output = job.Output
		a.json(w, http.StatusOK, resp)
		return
	}
	resp.EnablePolling = !job.Status.IsTerminal()
	a.json(w, http.StatusAccepted, resp)
}

// VideoRemoteStatus reports the backend's view of a remote job.
func (a *App) VideoRemoteStatus(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "remote_id")
	status, err := a.Jobs.RemoteStatus(r.Context(), remoteID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

// checkSourceImage accepts inline data URIs and http(s) URLs on an allowed
// host. An empty allowlist accepts any host.
func (a *App) checkSourceImage(src string) error {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:image/") {
		return nil
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return &domain.ValidationError{Field: "source_image", Message: "must be an http(s) URL or an image data URI"}
	}
	if a.Config == nil || len(a.Config.ImageSourceAllowlist) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range a.Config.ImageSourceAllowlist {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return &domain.ValidationError{Field: "source_image", Message: "host " + host + " is not allowed"}
}
