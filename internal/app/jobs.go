/**
 * @description
 * Scheduled housekeeping jobs for the bank API.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const staleUploadAge = 24 * time.Hour

// OTPPurger clears expired one-time passwords.
type OTPPurger interface {
	PurgeExpiredOTPs(ctx context.Context) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	otps      OTPPurger
	uploadDir string
	logger    *slog.Logger
	now       func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(otps OTPPurger, uploadDir string, logger *slog.Logger) *Jobs {
	return &Jobs{
		otps:      otps,
		uploadDir: uploadDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Tasks returns the housekeeping jobs with their schedules. A blank schedule
// leaves that job out.
func (j *Jobs) Tasks(cfg ScheduleConfig) []Task {
	return []Task{
		{Name: "otp_cleanup", Spec: cfg.OTPCleanup, Timeout: time.Minute, Run: j.PurgeExpiredOTPs},
		{Name: "upload_sweep", Spec: cfg.UploadSweep, Timeout: 5 * time.Minute, Run: j.SweepStaleUploads},
	}
}

// PurgeExpiredOTPs clears OTP hashes whose expiry has passed.
func (j *Jobs) PurgeExpiredOTPs(ctx context.Context) error {
	purged, err := j.otps.PurgeExpiredOTPs(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		j.logger.Info("purged expired otps", "count", purged)
	}
	return nil
}

// SweepStaleUploads removes spooled upload files older than a day. Files that old
// belong to jobs that can no longer succeed.
func (j *Jobs) SweepStaleUploads(ctx context.Context) error {
	if j.uploadDir == "" {
		return nil
	}
	entries, err := os.ReadDir(j.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	cutoff := j.now().Add(-staleUploadAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("failed to remove stale upload", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("removed stale uploads", "count", removed)
	}
	return nil
}
