package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// JobsList returns the visible job history, newest first.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.Jobs.List()})
}

func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// JobCancel cancels a job. Canceling a finished job returns it unchanged.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Cancel(chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, job)
}
