// Package scheduler enqueues background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applogger "SignalDesk/pkg/logger"
)

// Dispatcher enqueues a job by type.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType string, payload any) error
}

// Runner owns a seconds-resolution cron and turns each tick into a job
// dispatch. Ticks never overlap for the same entry.
type Runner struct {
	cron       *cron.Cron
	dispatcher Dispatcher
	l          *applogger.Logger
	baseCtx    context.Context
	timeout    time.Duration
}

func New(baseCtx context.Context, dispatcher Dispatcher, loc *time.Location, l *applogger.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	if l == nil {
		l = applogger.NewNop()
	}
	l = l.With(applogger.String("component", "scheduler"))
	cl := cronLogger{l: l}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		dispatcher: dispatcher,
		l:          l,
		baseCtx:    baseCtx,
		timeout:    10 * time.Second,
	}
}

// Schedule dispatches jobType with payload on every tick of spec. An empty
// spec disables the entry.
func (r *Runner) Schedule(spec, jobType string, payload any) (cron.EntryID, error) {
	if spec == "" {
		r.l.Info("schedule disabled", applogger.String("job", jobType))
		return 0, nil
	}
	id, err := r.cron.AddFunc(spec, func() { r.fire(jobType, payload) })
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", jobType, spec, err)
	}
	r.l.Info("job scheduled", applogger.String("job", jobType), applogger.String("spec", spec))
	return id, nil
}

func (r *Runner) fire(jobType string, payload any) {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()
	if err := r.dispatcher.Dispatch(ctx, jobType, payload); err != nil {
		r.l.Error("scheduled dispatch failed", applogger.String("job", jobType), applogger.Error(err))
		return
	}
	r.l.Debug("scheduled job dispatched", applogger.String("job", jobType))
}

// Entries is the number of active schedules.
func (r *Runner) Entries() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.l.Info("cron started", applogger.Int("entries", r.Entries()))
	r.cron.Start()
}

// Stop waits for running ticks to finish or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.l.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{ l *applogger.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug("cron: "+msg, fields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(fields(kv), applogger.Error(err))...)
}

func fields(kv []any) []applogger.Field {
	out := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, applogger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
