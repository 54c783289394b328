package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/persistence"
	"mediagen/internal/storage"
)

const reconcileBatch = 500

// localSource lists records kept in the fallback sink.
type localSource interface {
	List(ctx context.Context) ([]domain.PersistenceRecord, error)
}

// durableIndex reports which record ids the durable store already holds.
type durableIndex interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, records []domain.PersistenceRecord) (persistence.ReconcileResult, error)
}

type reconcileWorker struct {
	local   localSource
	durable durableIndex
	gate    reconciler
	logger  infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := repo.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("worker: migrate failed")
	}

	cache, err := storage.OpenLocalCache(cfg.LocalCachePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open local cache")
	}
	defer cache.Close()

	records := repo.NewRecordRepository(runner)
	// Only the durable sink: the records already live in the local one.
	gate, err := persistence.NewGate(records, nil, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure persistence")
	}

	w := &reconcileWorker{local: cache, durable: records, gate: gate, logger: logger}
	if err := w.Run(ctx, cfg.ReconcileInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run reconciles once immediately and then every interval until ctx ends.
func (w *reconcileWorker) Run(ctx context.Context, interval time.Duration) error {
	w.logger.Info().Dur("interval", interval).Msg("worker: started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.pass(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			w.logger.Error().Err(err).Msg("worker: reconcile pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pass replays every locally cached record missing from the durable store.
func (w *reconcileWorker) pass(ctx context.Context) (persistence.ReconcileResult, error) {
	var total persistence.ReconcileResult
	cached, err := w.local.List(ctx)
	if err != nil {
		return total, fmt.Errorf("list local records: %w", err)
	}
	for start := 0; start < len(cached); start += reconcileBatch {
		end := min(start+reconcileBatch, len(cached))
		batch := cached[start:end]
		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}
		existing, err := w.durable.ExistingIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("check durable records: %w", err)
		}
		missing := make([]domain.PersistenceRecord, 0, len(batch))
		for _, rec := range batch {
			if !existing[rec.ID] {
				missing = append(missing, rec)
			}
		}
		total.Skipped += len(batch) - len(missing)
		res, err := w.gate.Reconcile(ctx, missing)
		total.Saved += res.Saved
		total.Skipped += res.Skipped
		total.Failed += res.Failed
		if err != nil {
			return total, err
		}
	}
	w.logger.Info().Int("cached", len(cached)).Stringer("result", total).Msg("worker: reconcile pass finished")
	return total, nil
}
