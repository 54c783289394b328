package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
)

// SyncPrefix marks remote ids synthesized locally for jobs the backend
// finished during creation. Status lookups for such ids never reach the
// backend.
const SyncPrefix = "sync-"

const persistTimeout = 30 * time.Second

// Saver stores a terminal job at most once per id.
type Saver interface {
	TrySave(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Backend   Backend
	Store     *Store
	Scheduler *Scheduler
	// Repo is optional; without it jobs do not survive a restart.
	Repo   domain.JobRepository
	Saver  Saver
	Logger *zerolog.Logger
}

// Service is the entry point for creating, inspecting and canceling video
// jobs. It reacts to scheduler events by persisting terminal jobs.
type Service struct {
	backend   Backend
	store     *Store
	scheduler *Scheduler
	repo      domain.JobRepository
	saver     Saver
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string

	unsubscribe func()
}

// NewService constructs a Service and subscribes it to the scheduler.
func NewService(cfg ServiceConfig) *Service {
	logger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "jobs").Logger()
	}
	s := &Service{
		backend:   cfg.Backend,
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		repo:      cfg.Repo,
		saver:     cfg.Saver,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	s.unsubscribe = cfg.Scheduler.Subscribe(s.handleEvent)
	return s
}

// Close detaches the service from the scheduler.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// CreateVideo validates req, submits it to the backend and starts polling.
// A backend that finishes synchronously yields an already completed job
// whose remote id carries SyncPrefix.
func (s *Service) CreateVideo(ctx context.Context, req jsoncfg.VideoRequest) (domain.Job, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.Job{}, err
	}
	job := domain.Job{
		ID:                    s.newID(),
		Kind:                  domain.JobKindVideo,
		Status:                domain.JobStatusQueued,
		Stage:                 StageQueued,
		TargetDurationSeconds: req.DurationSeconds,
		Params: domain.JobParams{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			AspectRatio:    req.AspectRatio,
			Model:          req.Model,
		},
		SourceReference: req.SourceImage,
		StartedAt:       s.now(),
	}
	if err := s.store.Add(job); err != nil {
		return domain.Job{}, err
	}
	log := s.logger.With().Str("job_id", job.ID).Logger()

	status, err := s.backend.Create(ctx, CreateParams{
		Prompt:          req.Prompt,
		NegativePrompt:  req.NegativePrompt,
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     req.AspectRatio,
		SourceImage:     req.SourceImage,
		Model:           req.Model,
	})
	if err != nil {
		failed, _, finishErr := s.store.Finish(job.ID, domain.JobStatusFailed, "", err.Error())
		if finishErr != nil {
			log.Error().Err(finishErr).Msg("jobs: mark create failure")
		}
		log.Warn().Err(err).Msg("jobs: backend rejected job")
		return failed, err
	}

	switch status.State {
	case RemoteSucceeded:
		if status.Output == "" {
			err := &domain.BackendError{Provider: s.scheduler.provider, Err: errors.New("reported success without output")}
			failed, _, _ := s.store.Finish(job.ID, domain.JobStatusFailed, "", err.Error())
			return failed, err
		}
		if _, err := s.store.MarkGenerating(job.ID, SyncPrefix+job.ID); err != nil {
			return domain.Job{}, err
		}
		done, _, err := s.store.Finish(job.ID, domain.JobStatusCompleted, status.Output, "")
		if err != nil {
			return domain.Job{}, err
		}
		log.Info().Msg("jobs: backend completed job synchronously")
		s.persist(done)
		return done, nil
	case RemoteFailed, RemoteCanceled:
		msg := status.Error
		if msg == "" {
			msg = string(status.State) + " by backend"
		}
		err := &domain.BackendError{Provider: s.scheduler.provider, Err: errors.New(msg)}
		failed, _, _ := s.store.Finish(job.ID, domain.JobStatusFailed, "", err.Error())
		return failed, err
	}

	if status.ID == "" {
		err := &domain.BackendError{Provider: s.scheduler.provider, Err: errors.New("missing job id in create response")}
		failed, _, _ := s.store.Finish(job.ID, domain.JobStatusFailed, "", err.Error())
		return failed, err
	}
	generating, err := s.store.MarkGenerating(job.ID, status.ID)
	if err != nil {
		current, _ := s.store.Get(job.ID)
		if current.Status == domain.JobStatusCanceled {
			// Canceled while the create call was in flight.
			return current, nil
		}
		return current, err
	}
	if s.repo != nil {
		if err := s.repo.Create(ctx, generating); err != nil {
			log.Warn().Err(err).Msg("jobs: record job row failed")
		}
	}
	if err := s.scheduler.Register(job.ID, status.ID, job.TargetDurationSeconds); err != nil {
		if current, ok := s.store.Get(job.ID); ok && current.Status == domain.JobStatusCanceled {
			return current, nil
		}
		return generating, fmt.Errorf("jobs: start polling: %w", err)
	}
	return generating, nil
}

// Get returns one job from the store.
func (s *Service) Get(id string) (domain.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return domain.Job{}, fmt.Errorf("jobs: %s: %w", id, domain.ErrNotFound)
	}
	return job, nil
}

// List returns the UI-visible job history.
func (s *Service) List() []domain.Job {
	return s.store.List()
}

// Cancel cancels a job. It is a no-op for terminal jobs. Unknown ids report
// ErrNotFound.
func (s *Service) Cancel(id string) (domain.Job, error) {
	if _, ok := s.store.Get(id); !ok {
		return domain.Job{}, fmt.Errorf("jobs: %s: %w", id, domain.ErrNotFound)
	}
	s.scheduler.Cancel(id)
	job, _ := s.store.Get(id)
	return job, nil
}

// RemoteStatus asks the backend about remoteID. Locally synthesized ids
// short-circuit to succeeded.
func (s *Service) RemoteStatus(ctx context.Context, remoteID string) (RemoteStatus, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return RemoteStatus{}, &domain.ValidationError{Field: "remote_id", Message: "is required"}
	}
	if strings.HasPrefix(remoteID, SyncPrefix) {
		status := RemoteStatus{ID: remoteID, State: RemoteSucceeded}
		if job, ok := s.store.Get(strings.TrimPrefix(remoteID, SyncPrefix)); ok {
			status.Output = job.Output
		}
		return status, nil
	}
	return s.backend.Status(ctx, remoteID)
}

// Resume reloads jobs that were still generating when the process stopped
// and polls them again within what is left of their timeout.
func (s *Service) Resume(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobs: list active: %w", err)
	}
	resumed := 0
	for _, job := range active {
		log := s.logger.With().Str("job_id", job.ID).Logger()
		if job.RemoteID == "" {
			log.Warn().Msg("jobs: skip resume without remote id")
			continue
		}
		job.Status = domain.JobStatusGenerating
		job.CompletedAt = nil
		if err := s.store.Add(job); err != nil {
			log.Warn().Err(err).Msg("jobs: skip resume")
			continue
		}
		if err := s.scheduler.Register(job.ID, job.RemoteID, job.TargetDurationSeconds); err != nil {
			log.Warn().Err(err).Msg("jobs: resume registration failed")
			continue
		}
		resumed++
	}
	s.logger.Info().Int("resumed", resumed).Int("found", len(active)).Msg("jobs: resume finished")
	return resumed, nil
}

func (s *Service) handleEvent(ev Event) {
	switch ev.Type {
	case EventCompleted, EventFailed, EventCanceled:
	default:
		return
	}
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.repo.UpdateStatus(ctx, ev.Job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", ev.Job.ID).Msg("jobs: update job row failed")
		}
		cancel()
	}
	if ev.Type != EventCanceled {
		s.persist(ev.Job)
	}
}

// persist never changes the job outcome; failures are only logged.
func (s *Service) persist(job domain.Job) {
	if s.saver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := s.saver.TrySave(ctx, job.Record()); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: persist result failed")
	}
}
