package repo

import (
	"context"
	"fmt"

	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// Migrate creates the tables the service needs if they do not exist yet.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	for _, stmt := range sqlinline.Schema {
		if _, err := sql.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repo: migrate: %w", err)
		}
	}
	return nil
}
