package domain

import "context"

// JobRepository persists job rows so that in-flight jobs survive a restart.
type JobRepository interface {
	Create(ctx context.Context, job Job) error
	UpdateStatus(ctx context.Context, job Job) error
	ListActive(ctx context.Context) ([]Job, error)
}

// RecordSink is one backing store for finished records. SaveRecord must be
// idempotent per record ID and may return the stored record with fields the
// store assigned.
type RecordSink interface {
	SaveRecord(ctx context.Context, rec PersistenceRecord) (*PersistenceRecord, error)
}
