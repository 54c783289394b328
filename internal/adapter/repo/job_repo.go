package repo

import (
	"context"
	"fmt"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository over generation_jobs.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job row. Inserting an existing id is a no-op.
func (r *JobRepositoryPG) Create(ctx context.Context, job domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		job.RemoteID,
		string(job.Kind),
		string(job.Status),
		job.Params.Prompt,
		job.Params.NegativePrompt,
		job.Params.AspectRatio,
		job.Params.Model,
		job.TargetDurationSeconds,
		job.SourceReference,
		job.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: insert job: %w", err)
	}
	return nil
}

// UpdateStatus writes the job's current status, output and error. Rows that
// are already terminal are left untouched.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, job domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateGenerationJobStatus,
		job.ID,
		string(job.Status),
		job.Output,
		job.Error,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: update job status: %w", err)
	}
	return nil
}

// ListActive returns jobs that were not finished, oldest first.
func (r *JobRepositoryPG) ListActive(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListActiveGenerationJobs)
	if err != nil {
		return nil, fmt.Errorf("repo: list active jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var (
			job          domain.Job
			kind, status string
		)
		if err := rows.Scan(
			&job.ID,
			&job.RemoteID,
			&kind,
			&status,
			&job.Params.Prompt,
			&job.Params.NegativePrompt,
			&job.Params.AspectRatio,
			&job.Params.Model,
			&job.TargetDurationSeconds,
			&job.SourceReference,
			&job.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("repo: scan job: %w", err)
		}
		job.Kind = domain.JobKind(kind)
		job.Status = domain.JobStatus(status)
		out = append(out, job)
	}
	return out, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
