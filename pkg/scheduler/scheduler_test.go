package scheduler

import (
	"context"
	"sync"
	"testing"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	types []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobType string, _ any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types = append(d.types, jobType)
	return nil
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	r := New(context.Background(), &recordingDispatcher{}, nil, nil)
	if _, err := r.Schedule("every day", "rank_pending", nil); err == nil {
		t.Fatalf("want error for malformed spec")
	}
	if _, err := r.Schedule("0 0 18 * * 1-5", "rank_pending", nil); err != nil {
		t.Fatalf("six-field spec: %v", err)
	}
	if _, err := r.Schedule("", "daily_screen", nil); err != nil {
		t.Fatalf("empty spec should disable: %v", err)
	}
	if r.Entries() != 1 {
		t.Fatalf("want 1 entry, got %d", r.Entries())
	}
}

func TestTickDispatchesJob(t *testing.T) {
	d := &recordingDispatcher{}
	r := New(context.Background(), d, nil, nil)
	id, err := r.Schedule("*/5 * * * * *", "lifecycle_refresh", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	r.cron.Entry(id).WrappedJob.Run()

	if len(d.types) != 1 || d.types[0] != "lifecycle_refresh" {
		t.Fatalf("dispatched %v", d.types)
	}
}
