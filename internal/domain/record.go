package domain

import "time"

// PersistenceRecord is the durable representation of a finished job or image.
// ID is the identity key shared by every backing store.
type PersistenceRecord struct {
	ID              string     `json:"id"`
	Kind            JobKind    `json:"kind"`
	URL             string     `json:"url"`
	Prompt          string     `json:"prompt"`
	DurationSeconds float64    `json:"duration"`
	AspectRatio     string     `json:"aspect_ratio"`
	Model           string     `json:"model"`
	Status          JobStatus  `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}
