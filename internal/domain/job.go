package domain

import "time"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindVideo JobKind = "video"
	JobKindImage JobKind = "image"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether no further transition may leave the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal step of the
// queued -> generating -> {completed|failed|canceled} machine. Queued may skip
// straight to a terminal state when a job is canceled or rejected before the
// backend acknowledges it.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusGenerating || next.IsTerminal()
	case JobStatusGenerating:
		return next.IsTerminal()
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusGenerating, JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// JobParams holds the request inputs forwarded to the remote backend.
type JobParams struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	AspectRatio    string `json:"aspect_ratio"`
	Model          string `json:"model,omitempty"`
}

// Job encapsulates the lifecycle of one video or image generation request.
type Job struct {
	ID                    string     `json:"id"`
	RemoteID              string     `json:"remote_id,omitempty"`
	Kind                  JobKind    `json:"kind"`
	Status                JobStatus  `json:"status"`
	Progress              float64    `json:"progress"`
	Stage                 string     `json:"stage"`
	TargetDurationSeconds float64    `json:"target_duration_seconds"`
	Params                JobParams  `json:"params"`
	SourceReference       string     `json:"source_reference,omitempty"`
	Output                string     `json:"output,omitempty"`
	Error                 string     `json:"error,omitempty"`
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}

// Record converts a terminal job into its persisted representation.
func (j Job) Record() PersistenceRecord {
	return PersistenceRecord{
		ID:              j.ID,
		Kind:            j.Kind,
		URL:             j.Output,
		Prompt:          j.Params.Prompt,
		DurationSeconds: j.TargetDurationSeconds,
		AspectRatio:     j.Params.AspectRatio,
		Model:           j.Params.Model,
		Status:          j.Status,
		CreatedAt:       j.StartedAt,
		CompletedAt:     j.Clone().CompletedAt,
		ErrorMessage:    j.Error,
	}
}
