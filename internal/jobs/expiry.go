// Package jobs: фоновые задачи по расписанию.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const expiryJob = "expiry_sweep"

// Sweeper переводит просроченные абонементы в expired.
type Sweeper interface {
	SweepExpired(ctx context.Context, at time.Time) (int64, error)
}

type Recorder interface {
	Expired(n int64)
	JobFailed(job string)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	metrics Recorder
	log     *slog.Logger
	timeout time.Duration
}

// New собирает планировщик; schedule: cron-выражение из конфига (5 полей или @daily).
func New(schedule string, loc *time.Location, sw Sweeper, m Recorder, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		sweeper: sw,
		metrics: m,
		log:     log,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.SweepOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("jobs: bad schedule %q: %w", schedule, err)
	}
	return s, nil
}

// SweepOnce: один проход; вызывается по расписанию и при старте.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.sweeper.SweepExpired(ctx, time.Time{})
	if err != nil {
		s.log.Error("expiry sweep failed", "err", err)
		if s.metrics != nil {
			s.metrics.JobFailed(expiryJob)
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.Expired(n)
	}
	s.log.Debug("expiry sweep done", "expired", n)
	return nil
}

// Run крутит расписание до отмены ctx и ждёт завершения запущенных задач.
func (s *Scheduler) Run(ctx context.Context) error {
	_ = s.SweepOnce(ctx)
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}
