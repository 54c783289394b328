package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

const (
	DefaultPollInterval = 8 * time.Second
	DefaultJobTimeout   = 600 * time.Second
)

// EventType distinguishes scheduler notifications.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCanceled  EventType = "canceled"
)

// Event carries a snapshot of the job at the moment it was emitted. Terminal
// events are delivered at most once per job.
type Event struct {
	Type EventType
	Job  domain.Job
	Err  error
}

// Handler receives scheduler events. Handlers run on the job's poll
// goroutine and should not block for long.
type Handler func(Event)

// PollEntry is the scheduler's bookkeeping for one active poll loop.
type PollEntry struct {
	JobID      string    `json:"job_id"`
	RemoteID   string    `json:"remote_id"`
	StartedAt  time.Time `json:"started_at"`
	LastPollAt time.Time `json:"last_poll_at,omitempty"`
}

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	Interval  time.Duration
	Timeout   time.Duration
	Estimator *Estimator
	Logger    *zerolog.Logger
	// Provider names the backend in error messages.
	Provider string
}

type pollEntry struct {
	PollEntry
	target float64
	stop   chan struct{}
	once   sync.Once
}

func (e *pollEntry) halt() {
	e.once.Do(func() { close(e.stop) })
}

// Scheduler owns the set of in-flight jobs and runs one independent poll
// loop per job against the remote backend.
type Scheduler struct {
	backend   Backend
	store     *Store
	interval  time.Duration
	timeout   time.Duration
	estimator Estimator
	provider  string
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*pollEntry
	closed  bool

	subMu   sync.RWMutex
	subs    map[int]Handler
	nextSub int

	closeOnce sync.Once
}

// NewScheduler constructs a scheduler bound to a backend and a job store.
// Call Close to stop every loop.
func NewScheduler(backend Backend, store *Store, opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	estimator := NewEstimator()
	if opts.Estimator != nil {
		estimator = *opts.Estimator
	}
	provider := opts.Provider
	if provider == "" {
		provider = "backend"
	}
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "scheduler").Logger()
	} else {
		logger = zerolog.New(io.Discard)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		backend:   backend,
		store:     store,
		interval:  interval,
		timeout:   timeout,
		estimator: estimator,
		provider:  provider,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*pollEntry),
		subs:      make(map[int]Handler),
	}
}

// Subscribe registers a handler for every job's events and returns a func
// that removes it.
func (s *Scheduler) Subscribe(h Handler) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = h
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Register starts polling remoteID on behalf of a generating job in the
// store. The timeout is measured from the job's StartedAt, so a job resumed
// after a restart only gets the budget it has left.
func (s *Scheduler) Register(jobID, remoteID string, targetDurationSeconds float64) error {
	job, ok := s.store.Get(jobID)
	if !ok {
		return fmt.Errorf("scheduler: %s: %w", jobID, domain.ErrNotFound)
	}
	if job.Status != domain.JobStatusGenerating {
		return fmt.Errorf("scheduler: %s is %s: %w", jobID, job.Status, domain.ErrInvalidTransition)
	}
	started := job.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("scheduler: closed")
	}
	if _, exists := s.entries[jobID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: %s: %w", jobID, domain.ErrAlreadyRegistered)
	}
	entry := &pollEntry{
		PollEntry: PollEntry{JobID: jobID, RemoteID: remoteID, StartedAt: started},
		target:    targetDurationSeconds,
		stop:      make(chan struct{}),
	}
	s.entries[jobID] = entry
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", jobID).
		Str("remote_id", remoteID).
		Float64("target_seconds", targetDurationSeconds).
		Msg("scheduler: job registered")
	go s.run(entry)
	return nil
}

// Cancel stops polling and marks the job canceled. Canceling an unknown,
// terminal or already canceled job is a no-op. It reports whether this call
// performed the cancellation.
func (s *Scheduler) Cancel(jobID string) bool {
	job, applied, err := s.store.Finish(jobID, domain.JobStatusCanceled, "", "")
	s.mu.Lock()
	entry := s.entries[jobID]
	delete(s.entries, jobID)
	s.mu.Unlock()
	if entry != nil {
		entry.halt()
	}
	if err != nil || !applied {
		return false
	}
	s.logger.Info().Str("job_id", jobID).Msg("scheduler: job canceled")
	s.emit(Event{Type: EventCanceled, Job: job})
	return true
}

// Active lists the poll loops currently running.
func (s *Scheduler) Active() []PollEntry {
	s.mu.Lock()
	out := make([]PollEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.PollEntry)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
	return out
}

// IsActive reports whether jobID has a live poll loop.
func (s *Scheduler) IsActive(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[jobID]
	return ok
}

// Close stops all poll loops and waits for them to exit. Jobs still
// generating are left as they are so that they can be resumed later.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		s.wg.Wait()
		s.logger.Info().Msg("scheduler: stopped")
	})
}

func (s *Scheduler) run(e *pollEntry) {
	defer s.wg.Done()
	defer s.deregister(e)

	deadline := e.StartedAt.Add(s.timeout)
	ctx, cancel := context.WithDeadline(s.ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.expire(e)
			}
			return
		case <-ticker.C:
			if s.poll(ctx, e) {
				return
			}
		}
	}
}

func (s *Scheduler) deregister(e *pollEntry) {
	s.mu.Lock()
	if cur, ok := s.entries[e.JobID]; ok && cur == e {
		delete(s.entries, e.JobID)
	}
	s.mu.Unlock()
}

type statusResult struct {
	status RemoteStatus
	err    error
}

// poll issues one status request and reports whether the loop is done. The
// request runs on its own goroutine so that the deadline fires even when the
// backend ignores ctx; a result arriving after that is dropped.
func (s *Scheduler) poll(ctx context.Context, e *pollEntry) bool {
	results := make(chan statusResult, 1)
	go func() {
		status, err := s.backend.Status(ctx, e.RemoteID)
		results <- statusResult{status: status, err: err}
	}()

	var res statusResult
	select {
	case <-e.stop:
		return true
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.expire(e)
		}
		return true
	case res = <-results:
	}
	status, err := res.status, res.err

	s.mu.Lock()
	e.LastPollAt = s.now()
	s.mu.Unlock()

	select {
	case <-e.stop:
		// Canceled while the request was in flight; the result is stale.
		return true
	default:
	}

	log := s.logger.With().Str("job_id", e.JobID).Str("remote_id", e.RemoteID).Logger()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.finish(e, domain.JobStatusFailed, "", err)
			return true
		}
		log.Warn().Err(err).Msg("scheduler: status check failed")
		return false
	}
	log.Debug().Str("state", string(status.State)).Msg("scheduler: polled")

	if !status.State.IsTerminal() {
		elapsed := s.now().Sub(e.StartedAt).Seconds()
		estimated, _ := s.estimator.Estimate(elapsed, e.target)
		stage := ""
		if status.State == RemoteStarting {
			stage = StageInitializing
		}
		job, ok := s.store.UpdateProgress(e.JobID, status.Progress, estimated, stage)
		if !ok {
			return true
		}
		s.emit(Event{Type: EventProgress, Job: job})
		return false
	}

	switch status.State {
	case RemoteSucceeded:
		if status.Output == "" {
			s.finish(e, domain.JobStatusFailed, "", &domain.BackendError{Provider: s.provider, Err: errors.New("reported success without output")})
			return true
		}
		s.finish(e, domain.JobStatusCompleted, status.Output, nil)
	case RemoteFailed:
		msg := status.Error
		if msg == "" {
			msg = "generation failed"
		}
		s.finish(e, domain.JobStatusFailed, "", &domain.BackendError{Provider: s.provider, Err: errors.New(msg)})
	default:
		s.finish(e, domain.JobStatusCanceled, "", nil)
	}
	return true
}

func (s *Scheduler) expire(e *pollEntry) {
	err := &domain.TimeoutError{JobID: e.JobID, After: s.timeout}
	s.logger.Warn().Str("job_id", e.JobID).Dur("timeout", s.timeout).Msg("scheduler: job timed out")
	s.finish(e, domain.JobStatusFailed, "", err)
}

func (s *Scheduler) finish(e *pollEntry, status domain.JobStatus, output string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	job, applied, err := s.store.Finish(e.JobID, status, output, msg)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", e.JobID).Msg("scheduler: finish failed")
		return
	}
	if !applied {
		return
	}
	s.deregister(e)
	ev := Event{Job: job, Err: cause}
	switch status {
	case domain.JobStatusCompleted:
		ev.Type = EventCompleted
	case domain.JobStatusFailed:
		ev.Type = EventFailed
	default:
		ev.Type = EventCanceled
	}
	s.logger.Info().Str("job_id", e.JobID).Str("status", string(status)).Msg("scheduler: job finished")
	s.emit(ev)
}

func (s *Scheduler) emit(ev Event) {
	s.subMu.RLock()
	handlers := make([]Handler, 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subMu.RUnlock()
	for _, h := range handlers {
		s.deliver(h, ev)
	}
}

func (s *Scheduler) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_id", ev.Job.ID).
				Str("event", string(ev.Type)).
				Interface("panic", r).
				Msg("scheduler: event handler panicked")
		}
	}()
	h(ev)
}
