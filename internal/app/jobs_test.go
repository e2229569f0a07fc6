package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type otpPurgerStub struct {
	called bool
	purged int64
	err    error
}

func (s *otpPurgerStub) PurgeExpiredOTPs(ctx context.Context) (int64, error) {
	s.called = true
	return s.purged, s.err
}

func newTestJobs(otps OTPPurger, dir string) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(otps, dir, logger)
}

func TestPurgeExpiredOTPs_CallsPurger(t *testing.T) {
	stub := &otpPurgerStub{purged: 2}
	if err := newTestJobs(stub, "").PurgeExpiredOTPs(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stub.called {
		t.Fatal("expected purger to be called")
	}

	failing := &otpPurgerStub{err: errors.New("db down")}
	if err := newTestJobs(failing, "").PurgeExpiredOTPs(context.Background()); err == nil {
		t.Fatal("expected purger error to be returned")
	}
}

func TestSweepStaleUploads_RemovesOnlyOldFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	oldFile := filepath.Join(dir, "photo-old.upload")
	freshFile := filepath.Join(dir, "photo-fresh.upload")
	for _, path := range []string{oldFile, freshFile} {
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := now.Add(-25 * time.Hour)
	if err := os.Chtimes(oldFile, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	jobs := newTestJobs(&otpPurgerStub{}, dir)
	jobs.now = func() time.Time { return now }
	if err := jobs.SweepStaleUploads(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(oldFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale file to be removed, stat err=%v", err)
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Fatalf("expected fresh file to remain, stat err=%v", err)
	}
}

func TestSweepStaleUploads_MissingDirIsNoop(t *testing.T) {
	jobs := newTestJobs(&otpPurgerStub{}, filepath.Join(t.TempDir(), "absent"))
	if err := jobs.SweepStaleUploads(context.Background()); err != nil {
		t.Fatalf("missing dir should not fail: %v", err)
	}
}

func TestSchedulerSkipsInvalidAndDisabledSpecs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := newTestJobs(&otpPurgerStub{}, "")
	s := NewScheduler(logger, append(jobs.Tasks(ScheduleConfig{
		OTPCleanup:  "@every 10m",
		UploadSweep: "every blue moon",
	}), Task{Name: "disabled", Run: func(context.Context) error { return nil }}))

	scheduled := s.Start()
	defer s.Stop()

	if scheduled != 1 {
		t.Fatalf("Start() scheduled %d jobs, want 1", scheduled)
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Fatalf("expected 1 cron entry, got %d", got)
	}
}

func TestSchedulerWrapAppliesTimeout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(logger, nil)

	var deadline time.Time
	var hasDeadline bool
	s.wrap(Task{Name: "deadline", Run: func(ctx context.Context) error {
		deadline, hasDeadline = ctx.Deadline()
		return errors.New("logged, not returned")
	}}).Run()

	if !hasDeadline {
		t.Fatal("expected the task context to carry a deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > defaultTaskTimeout {
		t.Fatalf("unexpected deadline distance %s", until)
	}
}
