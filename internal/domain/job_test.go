package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestJobStatusTransitions(t *testing.T) {
	all := []JobStatus{JobStatusQueued, JobStatusGenerating, JobStatusCompleted, JobStatusFailed, JobStatusCanceled}
	allowed := map[JobStatus][]JobStatus{
		JobStatusQueued:     {JobStatusGenerating, JobStatusCompleted, JobStatusFailed, JobStatusCanceled},
		JobStatusGenerating: {JobStatusCompleted, JobStatusFailed, JobStatusCanceled},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesAreAbsorbing(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCanceled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
		if s.CanTransitionTo(JobStatusGenerating) {
			t.Fatalf("%s must not re-enter generating", s)
		}
	}
	if JobStatusGenerating.IsTerminal() || JobStatusQueued.IsTerminal() {
		t.Fatal("queued/generating must not be terminal")
	}
}

func TestJobCloneCopiesCompletedAt(t *testing.T) {
	now := time.Now()
	j := Job{ID: "a", CompletedAt: &now}
	c := j.Clone()
	*c.CompletedAt = now.Add(time.Hour)
	if !j.CompletedAt.Equal(now) {
		t.Fatal("clone shares CompletedAt with original")
	}
}

func TestJobRecord(t *testing.T) {
	done := time.Unix(1700000100, 0)
	j := Job{
		ID:                    "job-1",
		Kind:                  JobKindVideo,
		Status:                JobStatusCompleted,
		Output:                "https://cdn.example.com/v.mp4",
		TargetDurationSeconds: 5,
		Params:                JobParams{Prompt: "waves", AspectRatio: "16:9", Model: "video-1"},
		StartedAt:             time.Unix(1700000000, 0),
		CompletedAt:           &done,
	}
	rec := j.Record()
	if rec.ID != "job-1" || rec.URL != j.Output || rec.Prompt != "waves" || rec.Model != "video-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CompletedAt == j.CompletedAt {
		t.Fatal("record must not alias the job's CompletedAt")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ValidationError{Field: "prompt", Message: "is required"}, CodeValidation},
		{&ConfigurationError{Provider: "qwen"}, CodeConfiguration},
		{fmt.Errorf("wrapped: %w", &RateLimitError{Provider: "qwen", RetryAfter: time.Second}), CodeRateLimited},
		{&ContentRejectedError{Provider: "qwen"}, CodeContentRejected},
		{&TimeoutError{JobID: "x", After: time.Minute}, CodeTimeout},
		{&BackendError{Provider: "video", Err: errors.New("boom")}, CodeBackend},
		{&PersistenceError{ID: "x"}, CodePersistence},
		{fmt.Errorf("job: %w", ErrNotFound), CodeNotFound},
		{errors.New("other"), CodeInternal},
	}
	for _, tc := range tests {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestPersistenceErrorUnwrapsBothCauses(t *testing.T) {
	durable := errors.New("db down")
	local := errors.New("disk full")
	err := &PersistenceError{ID: "x", Durable: durable, Local: local}
	if !errors.Is(err, durable) || !errors.Is(err, local) {
		t.Fatal("expected both causes to be reachable through errors.Is")
	}
}
