// Package scheduler runs the stale device sweep on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/metrics"
)

var (
	ErrAlreadyStarted  = errors.New("scheduler: already started")
	ErrNotStarted      = errors.New("scheduler: not started")
	ErrSweepInProgress = errors.New("scheduler: sweep already in progress")
)

// Sweeper performs one cleanup pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.SweepResult, error)
}

// Scheduler triggers a Sweeper on a five-field cron expression. At most one
// sweep runs at a time; a tick that arrives while one is still running is
// skipped.
type Scheduler struct {
	sweeper Sweeper
	log     logrus.FieldLogger
	timeout time.Duration

	cron     *cron.Cron
	schedule cron.Schedule
	spec     string

	running atomic.Bool

	mu      sync.Mutex
	started bool
	// baseCtx is cancelled on Stop so an in-flight sweep is interrupted.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New parses spec (e.g. "0 * * * *" for hourly) and returns a stopped
// scheduler. A non-positive timeout means sweeps run without a deadline.
func New(spec string, sweeper Sweeper, log logrus.FieldLogger, timeout time.Duration) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Scheduler{
		sweeper:  sweeper,
		log:      log,
		timeout:  timeout,
		schedule: schedule,
		spec:     spec,
	}, nil
}

// Next reports when the sweep will fire after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLogger(cronLogger{log: s.log}))
	s.cron.Schedule(s.schedule, cron.FuncJob(s.tick))
	s.cron.Start()
	s.started = true

	s.log.WithFields(logrus.Fields{
		"schedule": s.spec,
		"next_run": s.Next(time.Now()).UTC().Format(time.RFC3339),
	}).Info("cleanup scheduler started")

	return nil
}

// Stop halts the schedule, cancels a running sweep and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	c := s.cron
	cancel := s.cancel
	s.mu.Unlock()

	done := c.Stop()
	cancel()

	select {
	case <-done.Done():
		s.log.Info("cleanup scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for cleanup sweep: %w", ctx.Err())
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	// Failures are logged and counted by RunOnce.
	_, _ = s.RunOnce(base)
}

// RunOnce executes a single sweep immediately. It returns ErrSweepInProgress
// without sweeping if another sweep has not finished yet.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.CleanupRunsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		s.log.Warn("previous cleanup sweep still running, skipping")
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.sweeper.Sweep(ctx)
	elapsed := time.Since(start)
	metrics.CleanupDurationSeconds.Observe(elapsed.Seconds())

	entry := s.log.WithField("duration", elapsed.String())
	if result != nil {
		metrics.CleanupDevicesMarkedTotal.Add(float64(result.MarkedInactive))
		entry = entry.WithFields(logrus.Fields{
			"marked_inactive": result.MarkedInactive,
			"cutoff":          result.Cutoff.Format(time.RFC3339),
		})
	}

	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues(metrics.ResultError).Inc()
		entry.WithError(err).Error("cleanup sweep failed")
		return result, err
	}

	metrics.CleanupRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.CleanupLastSuccessTimestamp.SetToCurrentTime()
	entry.Info("cleanup sweep finished")

	return result, nil
}

// cronLogger routes cron's internal messages through logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
