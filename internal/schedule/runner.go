// Package schedule runs pipeline jobs on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs once a day at 06:00 (seconds field first).
const DefaultSpec = "0 0 6 * * *"

// Runner wraps a cron scheduler whose jobs share a base context.
// A job still running when its next tick fires is skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

// New creates a Runner. Jobs receive baseCtx, so cancelling it stops
// in-flight work.
func New(baseCtx context.Context, logger *slog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return id, nil
}

// Entries returns the scheduled entries with their next activation times.
func (r *Runner) Entries() []cron.Entry {
	return r.cron.Entries()
}

// RunNow runs an entry immediately through the same job chain, so it is
// skipped if a scheduled activation of the entry is still running.
func (r *Runner) RunNow(id cron.EntryID) error {
	e := r.cron.Entry(id)
	if !e.Valid() {
		return fmt.Errorf("no scheduled entry %d", id)
	}
	e.WrappedJob.Run()
	return nil
}

func (r *Runner) Start() {
	r.logger.Info("scheduler started", "entries", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
