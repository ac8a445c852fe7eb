// Package schedule runs a job on a cron expression in a fixed time zone.
package schedule

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers a job on a standard five-field cron expression or a
// descriptor such as "@every 10m". A tick that fires while the previous one is
// still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	jobID    cron.EntryID
	location *time.Location
}

// New creates a scheduler for spec evaluated in timezone.
func New(spec, timezone string, job func(), log *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cl := cronLogger{log: log.With("component", "scheduler")}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return nil, fmt.Errorf("add cron %q: %w", spec, err)
	}
	return &Scheduler{cron: c, jobID: id, location: loc}, nil
}

// Start begins cron execution.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Next returns the next activation time, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.jobID).Next
}

// Location returns the scheduler location.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// cronLogger adapts slog to cron.Logger. Routine cron messages go to debug.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, slog.Any("err", err))...)
}
