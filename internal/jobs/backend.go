package jobs

import "context"

// RemoteState is the job state reported by a remote generation backend.
type RemoteState string

const (
	RemoteStarting   RemoteState = "starting"
	RemoteProcessing RemoteState = "processing"
	RemoteSucceeded  RemoteState = "succeeded"
	RemoteFailed     RemoteState = "failed"
	RemoteCanceled   RemoteState = "canceled"
)

// IsTerminal reports whether the backend will not change the state again.
func (s RemoteState) IsTerminal() bool {
	return s == RemoteSucceeded || s == RemoteFailed || s == RemoteCanceled
}

// RemoteStatus is one observation of a remote job.
type RemoteStatus struct {
	ID     string      `json:"id"`
	State  RemoteState `json:"status"`
	Output string      `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
	// Progress is set only when the backend reports a fraction itself.
	Progress *float64 `json:"progress,omitempty"`
}

// CreateParams are the inputs of a remote generation job.
type CreateParams struct {
	Prompt          string
	NegativePrompt  string
	DurationSeconds float64
	AspectRatio     string
	SourceImage     string
	Model           string
}

// Backend is the contract of an external service that executes generation
// jobs. Create may return an already terminal status when the backend
// finished synchronously.
type Backend interface {
	Create(ctx context.Context, params CreateParams) (RemoteStatus, error)
	Status(ctx context.Context, remoteID string) (RemoteStatus, error)
}
