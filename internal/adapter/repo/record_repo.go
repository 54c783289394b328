package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// RecordRepositoryPG is the durable sink for finished records.
type RecordRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewRecordRepository creates a record repository backed by PostgreSQL.
func NewRecordRepository(sql infra.SQLExecutor) *RecordRepositoryPG {
	return &RecordRepositoryPG{sql: sql}
}

// SaveRecord inserts rec once. When the id already exists the stored row is
// returned unchanged.
func (r *RecordRepositoryPG) SaveRecord(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error) {
	if rec.ID == "" {
		return nil, errors.New("repo: record id is required")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertRecord,
		rec.ID,
		string(rec.Kind),
		rec.URL,
		rec.Prompt,
		rec.DurationSeconds,
		rec.AspectRatio,
		rec.Model,
		string(rec.Status),
		rec.ErrorMessage,
		created,
		rec.CompletedAt,
	)
	saved, err := scanRecord(row)
	if err == nil {
		return saved, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("repo: insert record: %w", err)
	}
	// Conflict: nothing was returned, read back the existing row.
	return r.Get(ctx, rec.ID)
}

// Get loads one record.
func (r *RecordRepositoryPG) Get(ctx context.Context, id string) (*domain.PersistenceRecord, error) {
	rec, err := scanRecord(r.sql.QueryRow(ctx, sqlinline.QSelectRecord, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("repo: record %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("repo: select record: %w", err)
	}
	return rec, nil
}

// ExistingIDs reports which of ids are already stored.
func (r *RecordRepositoryPG) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecordIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("repo: select record ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Delete removes a record from history.
func (r *RecordRepositoryPG) Delete(ctx context.Context, id string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteRecord, id); err != nil {
		return fmt.Errorf("repo: delete record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.PersistenceRecord, error) {
	var (
		rec          domain.PersistenceRecord
		kind, status string
	)
	if err := row.Scan(
		&rec.ID,
		&kind,
		&rec.URL,
		&rec.Prompt,
		&rec.DurationSeconds,
		&rec.AspectRatio,
		&rec.Model,
		&status,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.CompletedAt,
	); err != nil {
		return nil, err
	}
	rec.Kind = domain.JobKind(kind)
	rec.Status = domain.JobStatus(status)
	return &rec, nil
}

var _ domain.RecordSink = (*RecordRepositoryPG)(nil)
