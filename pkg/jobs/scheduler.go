// Package jobs runs the engine's periodic maintenance: catalog reconciliation
// against the live warehouse and eviction of idle chat sessions.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// slowJobThreshold is the run time above which a job run is logged as slow.
const slowJobThreshold = 30 * time.Second

// Scheduler wraps gocron with zap logging and a context that is cancelled on
// shutdown, so job bodies can pass it to blocking calls.
type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
}

// NewScheduler creates a scheduler. Jobs do not run until Start.
func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("jobs")
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogger{sugar: logger.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel, logger: logger}, nil
}

// Every schedules task to run once per interval, starting immediately. A run
// that outlasts the interval delays the next one instead of overlapping it.
func (s *Scheduler) Every(name string, interval time.Duration, task func(ctx context.Context)) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if task == nil {
		return fmt.Errorf("job %s: nil task", name)
	}

	run := func() {
		start := time.Now()
		task(s.ctx)
		if elapsed := time.Since(start); elapsed > slowJobThreshold {
			s.logger.Warn("Slow scheduled job",
				zap.String("job", name),
				zap.Duration("elapsed", elapsed))
		}
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(run),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	fields := []zap.Field{zap.String("job", name), zap.Duration("interval", interval)}
	if next, err := job.NextRun(); err == nil {
		fields = append(fields, zap.Time("next_run", next))
	}
	s.logger.Info("Scheduled job", fields...)
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Debug("Scheduler started", zap.Int("jobs", len(s.scheduler.Jobs())))
}

// Shutdown cancels running job contexts and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}

// gocronLogger forwards gocron's key/value logging to zap.
type gocronLogger struct {
	sugar *zap.SugaredLogger
}

var _ gocron.Logger = (*gocronLogger)(nil)

func (l *gocronLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
