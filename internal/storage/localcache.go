package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mediagen/internal/domain"
)

// LocalCache is the on-disk fallback sink for finished records. It keeps a
// copy of everything saved so that records missed by the durable store can be
// replayed later.
type LocalCache struct {
	db *sql.DB
}

// OpenLocalCache opens (and creates if needed) the sqlite database at path.
func OpenLocalCache(path string) (*LocalCache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: local cache path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure cache directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open local cache: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := migrateCache(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LocalCache{db: db}, nil
}

func migrateCache(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		prompt TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		aspect_ratio TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("storage: migrate local cache: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (c *LocalCache) Close() error {
	return c.db.Close()
}

// SaveRecord inserts rec unless a record with the same id exists, and returns
// the stored row.
func (c *LocalCache) SaveRecord(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error) {
	if rec.ID == "" {
		return nil, errors.New("storage: record id is required")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var completed *string
	if rec.CompletedAt != nil {
		ts := rec.CompletedAt.UTC().Format(time.RFC3339Nano)
		completed = &ts
	}
	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (id, kind, url, prompt, duration, aspect_ratio, model, status, error_message, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.URL, rec.Prompt, rec.DurationSeconds, rec.AspectRatio, rec.Model,
		string(rec.Status), errMsg, created.UTC().Format(time.RFC3339Nano), completed,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: insert record: %w", err)
	}
	return c.Get(ctx, rec.ID)
}

// Get loads one record.
func (c *LocalCache) Get(ctx context.Context, id string) (*domain.PersistenceRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT id, kind, url, prompt, duration, aspect_ratio, model, status, error_message, created_at, completed_at
		FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: record %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

// List returns every cached record, oldest first.
func (c *LocalCache) List(ctx context.Context) ([]domain.PersistenceRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, kind, url, prompt, duration, aspect_ratio, model, status, error_message, created_at, completed_at
		FROM records ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list records: %w", err)
	}
	defer rows.Close()
	var out []domain.PersistenceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes a record. Deleting a missing id is not an error.
func (c *LocalCache) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.PersistenceRecord, error) {
	var (
		rec               domain.PersistenceRecord
		kind, status      string
		errMsg, completed sql.NullString
		created           string
	)
	if err := row.Scan(&rec.ID, &kind, &rec.URL, &rec.Prompt, &rec.DurationSeconds, &rec.AspectRatio, &rec.Model,
		&status, &errMsg, &created, &completed); err != nil {
		return nil, err
	}
	rec.Kind = domain.JobKind(kind)
	rec.Status = domain.JobStatus(status)
	rec.ErrorMessage = errMsg.String
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.CreatedAt = t
	}
	if completed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completed.String); err == nil {
			rec.CompletedAt = &t
		}
	}
	return &rec, nil
}

var _ domain.RecordSink = (*LocalCache)(nil)
