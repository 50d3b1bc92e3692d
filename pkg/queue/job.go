package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Job handles one message type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

type Config struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
	// JobTimeout bounds a single Handle call. 0 means no limit.
	JobTimeout time.Duration
	KeyPrefix  string
}

// Decode unmarshals a payload into T. An empty payload yields the zero T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

func encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

type registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func (r *registry) register(jobs ...Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[string]Job)
	}
	for _, j := range jobs {
		if _, ok := r.jobs[j.Type()]; ok {
			return fmt.Errorf("job %s already registered", j.Type())
		}
		r.jobs[j.Type()] = j
	}
	return nil
}

func (r *registry) get(typ string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[typ]
	return j, ok
}

// Inline runs jobs synchronously in the caller's goroutine. It stands in for
// the Redis queue when Redis is disabled.
type Inline struct {
	registry
	timeout time.Duration
}

func NewInline(timeout time.Duration, jobs ...Job) (*Inline, error) {
	q := &Inline{timeout: timeout}
	if err := q.register(jobs...); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Inline) Register(jobs ...Job) error { return q.register(jobs...) }

func (q *Inline) Dispatch(ctx context.Context, jobType string, payload any) error {
	job, ok := q.get(jobType)
	if !ok {
		return fmt.Errorf("no job registered for type %s", jobType)
	}
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	return job.Handle(ctx, raw)
}
