package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "SignalDesk/pkg/http"
	applogger "SignalDesk/pkg/logger"
)

// Component is a background part of the process with an explicit lifecycle.
type Component interface {
	Start() error
	Stop(ctx context.Context) error
}

// Scheduler starts without an error and stops like a Component.
type Scheduler interface {
	Start()
	Stop(ctx context.Context) error
}

type closer struct {
	name string
	fn   func() error
}

// App owns the process lifecycle: it starts the API, the metrics server, the
// job workers, the Kafka consumer and the cron in that order, and stops them
// in reverse on SIGINT/SIGTERM.
type App struct {
	l               *applogger.Logger
	api             *xhttp.Server
	metrics         *xhttp.Server
	workers         Component
	consumer        Component
	scheduler       Scheduler
	closers         []closer
	shutdownTimeout time.Duration
}

type Option func(*App)

// WithWorkers sets the job queue workers. Nil means jobs run inline.
func WithWorkers(c Component) Option {
	return func(a *App) { a.workers = c }
}

// WithConsumer sets the Kafka consumer. Nil when Kafka is disabled.
func WithConsumer(c Component) Option {
	return func(a *App) { a.consumer = c }
}

// WithScheduler sets the cron runner. Nil when scheduling is disabled.
func WithScheduler(s Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithCloser registers a resource closed last, in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, closer{name: name, fn: fn}) }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

func New(l *applogger.Logger, api, metrics *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{l: l, api: api, metrics: metrics, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until an interrupt or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(); err != nil {
		a.l.Error("startup failed", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}
	a.l.Info("signaldesk started")

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start() error {
	if err := a.api.Start(); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	if a.metrics != nil {
		if err := a.metrics.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}
	if a.workers != nil {
		if err := a.workers.Start(); err != nil {
			return fmt.Errorf("job workers: %w", err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}
	if a.scheduler != nil {
		a.scheduler.Start()
	}
	return nil
}

// shutdown stops intake first (cron, consumer, HTTP), then drains workers and
// closes infrastructure. Every step runs even if an earlier one failed.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.l.Warn("shutdown step failed", applogger.String("step", name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if a.scheduler != nil {
		step("scheduler", func() error { return a.scheduler.Stop(ctx) })
	}
	if a.consumer != nil {
		step("kafka consumer", func() error { return a.consumer.Stop(ctx) })
	}
	step("api server", func() error { return a.api.Stop(ctx) })
	if a.workers != nil {
		step("job workers", func() error { return a.workers.Stop(ctx) })
	}
	if a.metrics != nil {
		step("metrics server", func() error { return a.metrics.Stop(ctx) })
	}
	for _, c := range a.closers {
		step(c.name, c.fn)
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
