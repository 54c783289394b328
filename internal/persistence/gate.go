package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mediagen/internal/domain"
)

// Gate guarantees at most one successful write per record id for the life of
// the process. Every record goes to the durable sink and the local sink; a
// save succeeds when either accepts it.
type Gate struct {
	durable domain.RecordSink
	local   domain.RecordSink
	logger  zerolog.Logger

	mu        sync.Mutex
	submitted map[string]struct{}
	group     singleflight.Group
}

// NewGate builds a gate over the two sinks. Either sink may be nil, but not
// both.
func NewGate(durable, local domain.RecordSink, logger *zerolog.Logger) (*Gate, error) {
	if durable == nil && local == nil {
		return nil, errors.New("persistence: at least one sink is required")
	}
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = logger.With().Str("component", "persistence").Logger()
	}
	return &Gate{
		durable:   durable,
		local:     local,
		logger:    l,
		submitted: make(map[string]struct{}),
	}, nil
}

type saveResult struct {
	record *domain.PersistenceRecord
}

// TrySave stores rec unless its id was already saved. Callers racing on the
// same id share one write; callers arriving after a successful write get nil,
// nil. When both sinks fail the id is released and a PersistenceError is
// returned.
func (g *Gate) TrySave(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error) {
	if rec.ID == "" {
		return nil, &domain.ValidationError{Field: "id", Message: "is required"}
	}
	v, err, _ := g.group.Do(rec.ID, func() (any, error) {
		if !g.mark(rec.ID) {
			return saveResult{}, nil
		}
		saved, err := g.write(ctx, rec)
		if err != nil {
			g.Forget(rec.ID)
			return nil, err
		}
		return saveResult{record: saved}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(saveResult).record, nil
}

// Saved reports whether id has been written.
func (g *Gate) Saved(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.submitted[id]
	return ok
}

// Forget releases id so that it may be saved again, as when the record is
// deleted from history.
func (g *Gate) Forget(id string) {
	g.mu.Lock()
	delete(g.submitted, id)
	g.mu.Unlock()
}

// ReconcileResult counts the outcome of a Reconcile pass.
type ReconcileResult struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Reconcile pushes every record through TrySave. It stops early only when ctx
// is done.
func (g *Gate) Reconcile(ctx context.Context, records []domain.PersistenceRecord) (ReconcileResult, error) {
	var res ReconcileResult
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		saved, err := g.TrySave(ctx, rec)
		switch {
		case err != nil:
			res.Failed++
			g.logger.Warn().Err(err).Str("id", rec.ID).Msg("persistence: reconcile save failed")
		case saved == nil:
			res.Skipped++
		default:
			res.Saved++
		}
	}
	return res, nil
}

// mark claims id before the write begins.
func (g *Gate) mark(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.submitted[id]; ok {
		return false
	}
	g.submitted[id] = struct{}{}
	return true
}

func (g *Gate) write(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error) {
	var (
		durableRec, localRec *domain.PersistenceRecord
		durableErr, localErr error
	)
	// Each sink records its own error so that one failing does not cancel the
	// other.
	var eg errgroup.Group
	if g.durable != nil {
		eg.Go(func() error {
			durableRec, durableErr = g.durable.SaveRecord(ctx, rec)
			return nil
		})
	} else {
		durableErr = errors.New("no durable sink")
	}
	if g.local != nil {
		eg.Go(func() error {
			localRec, localErr = g.local.SaveRecord(ctx, rec)
			return nil
		})
	} else {
		localErr = errors.New("no local sink")
	}
	_ = eg.Wait()

	log := g.logger.With().Str("id", rec.ID).Logger()
	if durableErr != nil && localErr != nil {
		log.Warn().AnErr("durable", durableErr).AnErr("local", localErr).Msg("persistence: save failed in every sink")
		return nil, &domain.PersistenceError{ID: rec.ID, Durable: durableErr, Local: localErr}
	}
	if durableErr != nil && g.durable != nil {
		log.Warn().Err(durableErr).Msg("persistence: durable save failed, kept locally")
	}
	if localErr != nil && g.local != nil {
		log.Warn().Err(localErr).Msg("persistence: local save failed")
	}
	switch {
	case durableErr == nil && durableRec != nil:
		return durableRec, nil
	case localErr == nil && localRec != nil:
		return localRec, nil
	default:
		out := rec
		return &out, nil
	}
}

// String is used in log lines.
func (r ReconcileResult) String() string {
	return fmt.Sprintf("saved=%d skipped=%d failed=%d", r.Saved, r.Skipped, r.Failed)
}
