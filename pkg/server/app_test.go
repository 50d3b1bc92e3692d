package server

import (
	"context"
	"errors"
	"testing"
	"time"

	xhttp "SignalDesk/pkg/http"
)

type recorder struct {
	name  string
	order *[]string
	err   error
}

func (r *recorder) Start() error {
	*r.order = append(*r.order, "start "+r.name)
	return r.err
}

func (r *recorder) Stop(context.Context) error {
	*r.order = append(*r.order, "stop "+r.name)
	return nil
}

type cronRecorder struct{ recorder }

func (c *cronRecorder) Start() { _ = c.recorder.Start() }

func TestRunStartsAndStopsInOrder(t *testing.T) {
	var order []string
	api := xhttp.NewServer(nil, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	app := New(nil, api, nil,
		WithWorkers(&recorder{name: "workers", order: &order}),
		WithConsumer(&recorder{name: "consumer", order: &order}),
		WithScheduler(&cronRecorder{recorder{name: "cron", order: &order}}),
		WithCloser("db", func() error { order = append(order, "close db"); return nil }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{
		"start workers", "start consumer", "start cron",
		"stop cron", "stop consumer", "stop workers", "close db",
	}
	if len(order) != len(want) {
		t.Fatalf("order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("step %d: want %q, got %q (%v)", i, want[i], order[i], order)
		}
	}
}

func TestRunFailsFastOnStartError(t *testing.T) {
	var order []string
	api := xhttp.NewServer(nil, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	boom := errors.New("no brokers")
	app := New(nil, api, nil,
		WithConsumer(&recorder{name: "consumer", order: &order, err: boom}),
	)
	if err := app.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want start error, got %v", err)
	}
	if order[len(order)-1] != "stop consumer" {
		t.Fatalf("consumer not stopped after failed start: %v", order)
	}
}
