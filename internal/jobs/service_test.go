package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
)

type stubSaver struct {
	mu    sync.Mutex
	saved []domain.PersistenceRecord
	err   error
}

func (s *stubSaver) TrySave(ctx context.Context, rec domain.PersistenceRecord) (*domain.PersistenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	if s.err != nil {
		return nil, s.err
	}
	return &rec, nil
}

func (s *stubSaver) records() []domain.PersistenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PersistenceRecord(nil), s.saved...)
}

type stubRepo struct {
	mu      sync.Mutex
	created []domain.Job
	updated []domain.Job
	active  []domain.Job
	err     error
	// onCreate runs after the job row is recorded.
	onCreate func(domain.Job)
}

func (r *stubRepo) Create(ctx context.Context, job domain.Job) error {
	r.mu.Lock()
	r.created = append(r.created, job)
	hook := r.onCreate
	r.mu.Unlock()
	if hook != nil {
		hook(job)
	}
	return r.err
}

func (r *stubRepo) UpdateStatus(ctx context.Context, job domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, job)
	return r.err
}

func (r *stubRepo) ListActive(ctx context.Context) ([]domain.Job, error) {
	return r.active, nil
}

func (r *stubRepo) updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updated)
}

type serviceFixture struct {
	svc       *Service
	backend   *fakeBackend
	store     *Store
	scheduler *Scheduler
	saver     *stubSaver
	repo      *stubRepo
}

func newServiceFixture(t *testing.T, backend *fakeBackend, timeout time.Duration) *serviceFixture {
	t.Helper()
	store := NewStore()
	scheduler := NewScheduler(backend, store, Options{Interval: 5 * time.Millisecond, Timeout: timeout, Provider: "video"})
	saver := &stubSaver{}
	repo := &stubRepo{}
	svc := NewService(ServiceConfig{Backend: backend, Store: store, Scheduler: scheduler, Repo: repo, Saver: saver})
	t.Cleanup(func() {
		scheduler.Close()
		svc.Close()
	})
	return &serviceFixture{svc: svc, backend: backend, store: store, scheduler: scheduler, saver: saver, repo: repo}
}

func TestServiceCreateVideoPollsUntilCompleted(t *testing.T) {
	backend := &fakeBackend{
		createStatus: RemoteStatus{ID: "pred-1", State: RemoteStarting},
		statuses: []RemoteStatus{
			{State: RemoteProcessing},
			{State: RemoteSucceeded, Output: "https://cdn.example.com/v.mp4"},
		},
	}
	fx := newServiceFixture(t, backend, time.Minute)

	job, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "  a fox in snow  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != domain.JobStatusGenerating || job.RemoteID != "pred-1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.TargetDurationSeconds != jsoncfg.DefaultVideoDurationSeconds || job.Params.AspectRatio != jsoncfg.DefaultVideoAspectRatio {
		t.Fatalf("defaults not applied: %+v", job)
	}
	if got := backend.created[0].Prompt; got != "a fox in snow" {
		t.Fatalf("prompt sent = %q", got)
	}

	waitFor(t, func() bool { return len(fx.saver.records()) == 1 })
	rec := fx.saver.records()[0]
	if rec.ID != job.ID || rec.URL != "https://cdn.example.com/v.mp4" || rec.Status != domain.JobStatusCompleted {
		t.Fatalf("unexpected record: %+v", rec)
	}
	waitFor(t, func() bool { return fx.repo.updates() == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := len(fx.saver.records()); n != 1 {
		t.Fatalf("expected one persistence attempt, got %d", n)
	}
	if len(fx.repo.created) != 1 {
		t.Fatalf("expected the job row to be recorded once, got %d", len(fx.repo.created))
	}
}

func TestServiceCreateVideoSynchronousCompletion(t *testing.T) {
	backend := &fakeBackend{createStatus: RemoteStatus{ID: "ignored", State: RemoteSucceeded, Output: "https://cdn/v.mp4"}}
	fx := newServiceFixture(t, backend, time.Minute)

	job, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "waves", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Output != "https://cdn/v.mp4" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !strings.HasPrefix(job.RemoteID, SyncPrefix) {
		t.Fatalf("remote id %q lacks sync prefix", job.RemoteID)
	}
	if fx.scheduler.IsActive(job.ID) {
		t.Fatal("synchronous job must not be polled")
	}
	if len(fx.saver.records()) != 1 {
		t.Fatalf("expected immediate persistence, got %d records", len(fx.saver.records()))
	}

	status, err := fx.svc.RemoteStatus(context.Background(), job.RemoteID)
	if err != nil {
		t.Fatalf("remote status: %v", err)
	}
	if status.State != RemoteSucceeded || status.Output != "https://cdn/v.mp4" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if backend.callCount() != 0 {
		t.Fatal("sync ids must not reach the backend")
	}
}

func TestServiceRemoteStatusRequiresID(t *testing.T) {
	fx := newServiceFixture(t, &fakeBackend{}, time.Minute)
	_, err := fx.svc.RemoteStatus(context.Background(), "  ")
	var validErr *domain.ValidationError
	if !errors.As(err, &validErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestServiceCreateVideoValidation(t *testing.T) {
	backend := &fakeBackend{}
	fx := newServiceFixture(t, backend, time.Minute)
	_, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "x", DurationSeconds: 99})
	if domain.ErrorCode(err) != domain.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(backend.created) != 0 || len(fx.svc.List()) != 0 {
		t.Fatal("invalid requests must not reach the backend or the store")
	}
}

func TestServiceCreateVideoBackendError(t *testing.T) {
	backend := &fakeBackend{createErr: &domain.RateLimitError{Provider: "video", RetryAfter: 30 * time.Second}}
	fx := newServiceFixture(t, backend, time.Minute)

	job, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "city at night"})
	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if job.Status != domain.JobStatusFailed || job.Error == "" {
		t.Fatalf("job should be marked failed: %+v", job)
	}
	if len(fx.scheduler.Active()) != 0 {
		t.Fatal("no poll loop expected")
	}
}

func TestServiceCreateVideoMissingRemoteID(t *testing.T) {
	backend := &fakeBackend{createStatus: RemoteStatus{State: RemoteStarting}}
	fx := newServiceFixture(t, backend, time.Minute)
	_, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "p"})
	if domain.ErrorCode(err) != domain.CodeBackend {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestServiceCancel(t *testing.T) {
	backend := &fakeBackend{createStatus: RemoteStatus{ID: "pred-1", State: RemoteProcessing}}
	fx := newServiceFixture(t, backend, time.Minute)
	job, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	canceled, err := fx.svc.Cancel(job.ID)
	if err != nil || canceled.Status != domain.JobStatusCanceled {
		t.Fatalf("cancel: %+v err=%v", canceled, err)
	}
	if again, err := fx.svc.Cancel(job.ID); err != nil || again.Status != domain.JobStatusCanceled {
		t.Fatalf("second cancel: %+v err=%v", again, err)
	}
	if _, err := fx.svc.Cancel("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	waitFor(t, func() bool { return fx.repo.updates() == 1 })
	if len(fx.saver.records()) != 0 {
		t.Fatal("canceled jobs are not persisted as records")
	}
}

func TestServiceCancelBeforePollingStarts(t *testing.T) {
	backend := &fakeBackend{createStatus: RemoteStatus{ID: "pred-1", State: RemoteProcessing}}
	fx := newServiceFixture(t, backend, time.Minute)
	fx.repo.onCreate = func(job domain.Job) {
		if _, err := fx.svc.Cancel(job.ID); err != nil {
			t.Errorf("cancel: %v", err)
		}
	}

	job, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("create should report the canceled job, got %v", err)
	}
	if job.Status != domain.JobStatusCanceled {
		t.Fatalf("status = %s, want canceled", job.Status)
	}
	if fx.scheduler.IsActive(job.ID) {
		t.Fatal("canceled job must not be polled")
	}
}

func TestServiceResume(t *testing.T) {
	backend := &fakeBackend{statuses: []RemoteStatus{{State: RemoteSucceeded, Output: "out"}}}
	fx := newServiceFixture(t, backend, time.Minute)
	fx.repo.active = []domain.Job{
		{ID: "j1", RemoteID: "r1", Kind: domain.JobKindVideo, Status: domain.JobStatusGenerating, TargetDurationSeconds: 5, StartedAt: time.Now()},
		{ID: "j2", Kind: domain.JobKindVideo, Status: domain.JobStatusQueued, StartedAt: time.Now()},
	}

	n, err := fx.svc.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if n != 1 {
		t.Fatalf("resumed %d jobs, want 1", n)
	}
	waitFor(t, func() bool { return len(fx.saver.records()) == 1 })
	job, err := fx.svc.Get("j1")
	if err != nil || job.Status != domain.JobStatusCompleted {
		t.Fatalf("resumed job: %+v err=%v", job, err)
	}
	if _, err := fx.svc.Get("j2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job without remote id should not be resumed, got %v", err)
	}
}

func TestServicePersistFailureDoesNotFailJob(t *testing.T) {
	backend := &fakeBackend{createStatus: RemoteStatus{State: RemoteSucceeded, Output: "out"}}
	fx := newServiceFixture(t, backend, time.Minute)
	fx.saver.err = &domain.PersistenceError{ID: "x", Durable: errors.New("db down"), Local: errors.New("disk full")}

	job, err := fx.svc.CreateVideo(context.Background(), jsoncfg.VideoRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
}
