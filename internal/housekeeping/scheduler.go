// Package housekeeping runs the retention and reconciliation jobs on cron
// schedules.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// Job names, also used as metric labels.
const (
	JobPurge   = "purge_expired_hits"
	JobRecount = "recount_campaigns"
)

// DefaultJobTimeout bounds one job run.
const DefaultJobTimeout = 5 * time.Minute

// Scheduler owns the cron runner. Overlapping runs of the same job are
// skipped.
type Scheduler struct {
	maint   store.Maintenance
	cron    *cron.Cron
	logger  *slog.Logger
	metrics metrics.Recorder
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithJobTimeout bounds each job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Scheduler. Schedules accept standard five-field cron
// expressions and descriptors such as @hourly.
func New(maint store.Maintenance, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "housekeeping")
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		maint:   maint,
		logger:  logger,
		metrics: metrics.NewNoop(),
		timeout: DefaultJobTimeout,
		now:     time.Now,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SchedulePurge registers the expired-hit purge. An empty schedule disables it.
func (s *Scheduler) SchedulePurge(spec string) error {
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunPurge(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", JobPurge, spec, err)
	}
	s.logger.Info("job scheduled", "job", JobPurge, "schedule", spec)
	return nil
}

// ScheduleRecount registers the campaign recount for the given campaigns.
func (s *Scheduler) ScheduleRecount(spec string, campaignIDs []string) error {
	if spec == "" {
		return nil
	}
	if len(campaignIDs) == 0 {
		return fmt.Errorf("schedule %s: no campaigns configured", JobRecount)
	}
	ids := append([]string(nil), campaignIDs...)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.RunRecount(ctx, ids)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", JobRecount, spec, err)
	}
	s.logger.Info("job scheduled", "job", JobRecount, "schedule", spec, "campaigns", len(ids))
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown stops scheduling and waits for running jobs.
// It implements server.ShutdownFunc.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunPurge deletes expired hits once.
func (s *Scheduler) RunPurge(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.maint.PurgeExpiredHits(ctx, s.now())
	if err != nil {
		s.metrics.IncHousekeepingRun(JobPurge, "failed")
		s.logger.Error("housekeeping_failed", "job", JobPurge, "error", err)
		return n, err
	}
	s.metrics.IncHousekeepingRun(JobPurge, "ok")
	s.logger.Info("housekeeping_done",
		"job", JobPurge,
		"deleted", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// RunRecount reconciles each campaign. Missing campaigns are skipped; the
// other failures are joined.
func (s *Scheduler) RunRecount(ctx context.Context, campaignIDs []string) error {
	var errs []error
	for _, id := range campaignIDs {
		totals, err := s.maint.RecountCampaign(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("recount_campaign_missing", "campaign_id", id)
		case err != nil:
			s.logger.Error("recount_campaign_failed", "campaign_id", id, "error", err)
			errs = append(errs, fmt.Errorf("campaign %s: %w", id, err))
		default:
			s.logger.Info("campaign_recounted",
				"campaign_id", id,
				"links", totals.Links,
				"hits", totals.Hits,
				"unique_ips", totals.UniqueVisitors,
			)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	err := errors.Join(errs...)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	s.metrics.IncHousekeepingRun(JobRecount, status)
	return err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
