package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type echoJob struct {
	got struct {
		Date string `json:"date"`
	}
}

func (j *echoJob) Type() string { return "echo" }

func (j *echoJob) Handle(_ context.Context, payload json.RawMessage) error {
	v, err := Decode[struct {
		Date string `json:"date"`
	}](payload)
	if err != nil {
		return err
	}
	j.got = v
	if v.Date == "" {
		return errors.New("date required")
	}
	return nil
}

func TestInlineDispatch(t *testing.T) {
	job := &echoJob{}
	q, err := NewInline(0, job)
	if err != nil {
		t.Fatalf("new inline: %v", err)
	}
	if err := q.Dispatch(context.Background(), "echo", map[string]string{"date": "2024-05-01"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if job.got.Date != "2024-05-01" {
		t.Fatalf("payload not delivered: %+v", job.got)
	}
	if err := q.Dispatch(context.Background(), "echo", nil); err == nil {
		t.Fatalf("handler error should surface")
	}
	if err := q.Dispatch(context.Background(), "missing", nil); err == nil {
		t.Fatalf("unknown type should fail")
	}
	if err := q.Register(&echoJob{}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}
