package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SignalDesk/pkg/logger"
)

// RedisQueue is a list-backed work queue with a delayed-retry ZSET and a
// dead-letter list.
type RedisQueue struct {
	registry
	lgr    *logger.Logger
	cfg    Config
	client *redis.Client

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(lgr *logger.Logger, cfg Config, client *redis.Client) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "signaldesk:queue"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{lgr: lgr, cfg: cfg, client: client, ctx: ctx, cancel: cancel}
}

func (q *RedisQueue) Register(jobs ...Job) error {
	if err := q.register(jobs...); err != nil {
		return err
	}
	for _, j := range jobs {
		q.lgr.Info("job registered", logger.String("type", j.Type()))
	}
	return nil
}

func (q *RedisQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.retryLoop()

	q.lgr.Info("redis queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("prefix", q.cfg.KeyPrefix))
	return nil
}

func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.lgr.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Dispatch enqueues a job for a worker to pick up.
func (q *RedisQueue) Dispatch(ctx context.Context, jobType string, payload any) error {
	if _, ok := q.get(jobType); !ok {
		return fmt.Errorf("no job registered for type %s", jobType)
	}
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	msg := Message{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	q.lgr.Debug("job enqueued", logger.String("type", jobType), logger.String("id", msg.ID))
	return nil
}

func (q *RedisQueue) key(suffix string) string {
	return q.cfg.KeyPrefix + ":" + suffix
}

func (q *RedisQueue) worker(id int) {
	defer q.wg.Done()
	for {
		if q.ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(q.ctx, time.Second, q.key("messages")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.lgr.Error("brpop failed", logger.Int("worker", id), logger.Error(err))
			select {
			case <-q.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.lgr.Error("drop malformed message", logger.Error(err))
			continue
		}
		q.process(msg)
	}
}

func (q *RedisQueue) process(msg Message) {
	job, ok := q.get(msg.Type)
	if !ok {
		q.lgr.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		q.deadLetter(msg)
		return
	}

	ctx := q.ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		q.lgr.Info("job done",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID),
			logger.Duration("took_ms", time.Since(start)))
		return
	}
	if errors.Is(err, context.Canceled) && q.ctx.Err() != nil {
		// shutting down; put it back for the next process
		q.requeue(msg)
		return
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > q.cfg.RetryLimit {
		q.lgr.Error("job failed permanently",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		q.deadLetter(msg)
		return
	}
	at := time.Now().Add(time.Duration(msg.Attempts) * q.cfg.RetryDelay)
	q.lgr.Warn("job failed, retry scheduled",
		logger.String("type", msg.Type),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", at),
		logger.Error(err))
	q.scheduleRetry(msg, at)
}

func (q *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.lgr.Error("marshal retry", logger.Error(err))
		return
	}
	if err := q.client.ZAdd(context.Background(), q.key("retry"), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		q.lgr.Error("zadd retry", logger.Error(err))
	}
}

func (q *RedisQueue) requeue(msg Message) {
	data, _ := json.Marshal(msg)
	if err := q.client.RPush(context.Background(), q.key("messages"), data).Err(); err != nil {
		q.lgr.Error("requeue", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (q *RedisQueue) deadLetter(msg Message) {
	data, _ := json.Marshal(msg)
	if err := q.client.LPush(context.Background(), q.key("dlq"), data).Err(); err != nil {
		q.lgr.Error("lpush dlq", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (q *RedisQueue) retryLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.promoteDue()
		}
	}
}

// promoteDue moves due retries back onto the main list. ZREM decides the
// winner when several processes promote at once.
func (q *RedisQueue) promoteDue() {
	due, err := q.client.ZRangeByScore(q.ctx, q.key("retry"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			q.lgr.Error("fetch retries", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		removed, err := q.client.ZRem(q.ctx, q.key("retry"), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(q.ctx, q.key("messages"), member).Err(); err != nil {
			q.lgr.Error("promote retry", logger.Error(err))
		}
	}
}
