/**
 * @description
 * Cron scheduler for the housekeeping jobs. Each run gets its own timeout and
 * is logged with its duration.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultTaskTimeout = time.Minute

// ScheduleConfig holds the cron specs of each job.
type ScheduleConfig struct {
	OTPCleanup  string
	UploadSweep string
}

// Task is one named job on a cron schedule.
type Task struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs tasks on their schedules. Overlapping runs of one task are skipped.
type Scheduler struct {
	cron   *cron.Cron
	tasks  []Task
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger, tasks []Task) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		tasks:  tasks,
		logger: logger,
	}
}

// Start registers every task with a valid schedule and starts the scheduler. It
// returns how many tasks were scheduled.
func (s *Scheduler) Start() int {
	scheduled := 0
	for _, task := range s.tasks {
		if task.Spec == "" {
			s.logger.Info("job disabled", "job", task.Name)
			continue
		}
		if _, err := s.cron.AddJob(task.Spec, s.wrap(task)); err != nil {
			s.logger.Error("failed to schedule job", "job", task.Name, "schedule", task.Spec, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "job", task.Name, "schedule", task.Spec)
		scheduled++
	}
	s.cron.Start()
	return scheduled
}

func (s *Scheduler) wrap(task Task) cron.Job {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		started := time.Now()
		if err := task.Run(ctx); err != nil {
			s.logger.Error("job failed", "job", task.Name, "duration", time.Since(started), "error", err)
			return
		}
		s.logger.Debug("job finished", "job", task.Name, "duration", time.Since(started))
	})
}

// Stop stops scheduling. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
