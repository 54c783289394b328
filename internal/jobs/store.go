package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mediagen/internal/domain"
)

// Store is the process-wide mapping of job id to job state. Every mutation
// goes through its mutex; callers only ever see copies.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*domain.Job), now: time.Now}
}

// Add registers a new job. Adding an id twice is rejected.
func (s *Store) Add(job domain.Job) error {
	if job.ID == "" {
		return fmt.Errorf("jobs: job id is required")
	}
	if !job.Status.Valid() {
		return fmt.Errorf("jobs: %w: unknown status %q", domain.ErrInvalidTransition, job.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("jobs: %s: %w", job.ID, domain.ErrAlreadyRegistered)
	}
	j := job.Clone()
	s.jobs[job.ID] = &j
	return nil
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return j.Clone(), true
}

// List returns every job, most recently started first.
func (s *Store) List() []domain.Job {
	s.mu.Lock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}

// Remove drops a job from the visible history.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// MarkGenerating records the backend acknowledgement of a queued job.
func (s *Store) MarkGenerating(id, remoteID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("jobs: %s: %w", id, domain.ErrNotFound)
	}
	if j.Status != domain.JobStatusGenerating && !j.Status.CanTransitionTo(domain.JobStatusGenerating) {
		return j.Clone(), fmt.Errorf("jobs: %s is %s: %w", id, j.Status, domain.ErrInvalidTransition)
	}
	j.Status = domain.JobStatusGenerating
	j.RemoteID = remoteID
	if j.Stage == "" || j.Stage == StageQueued {
		j.Stage = StageInitializing
	}
	return j.Clone(), nil
}

// UpdateProgress ratchets the progress of a generating job. The stage is
// derived from the ratcheted value unless stage is set. It reports false
// when the job is no longer generating, in which case nothing changed.
func (s *Store) UpdateProgress(id string, reported *float64, estimated float64, stage string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != domain.JobStatusGenerating {
		return domain.Job{}, false
	}
	j.Progress = Ratchet(j.Progress, reported, estimated)
	if stage == "" {
		stage = StageFor(j.Progress)
	}
	j.Stage = stage
	return j.Clone(), true
}

// Finish moves a job into a terminal status. Only the first terminal
// transition is applied; later calls report applied=false without error so
// that racing completion, failure and cancel paths settle on one winner.
func (s *Store) Finish(id string, status domain.JobStatus, output, errMsg string) (domain.Job, bool, error) {
	if !status.IsTerminal() {
		return domain.Job{}, false, fmt.Errorf("jobs: %w: %s is not terminal", domain.ErrInvalidTransition, status)
	}
	if status == domain.JobStatusCompleted && output == "" {
		return domain.Job{}, false, fmt.Errorf("jobs: %w: completed without output", domain.ErrInvalidTransition)
	}
	if status == domain.JobStatusFailed && errMsg == "" {
		errMsg = "generation failed"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false, fmt.Errorf("jobs: %s: %w", id, domain.ErrNotFound)
	}
	if !j.Status.CanTransitionTo(status) {
		return j.Clone(), false, nil
	}
	now := s.now()
	j.Status = status
	j.CompletedAt = &now
	switch status {
	case domain.JobStatusCompleted:
		j.Output = output
		j.Progress = 1
		j.Stage = StageCompleted
	case domain.JobStatusFailed:
		j.Error = errMsg
		j.Stage = StageFailed
	case domain.JobStatusCanceled:
		j.Stage = StageCanceled
	}
	return j.Clone(), true, nil
}
