package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

// emitter publishes domain events after commits. Publish failures are logged
// and never undo the committed change.
type emitter struct {
	pub domrepo.EventPublisher
	lgr *applogger.Logger
	now func() time.Time
}

func (e emitter) emit(ctx context.Context, typ models.EventType, key string, payload any) {
	if e.pub == nil {
		return
	}
	ev := models.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		OccurredAt: e.now().UTC(),
		Payload:    payload,
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.lgr.Warn("publish event failed",
			applogger.String("type", string(typ)),
			applogger.String("key", key),
			applogger.Error(err))
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordSignals(string, int) {}
func (nopMetrics) RecordTransition(string, string) {}
func (nopMetrics) RecordDeployed(string, float64) {}

func metricsOrNop(m domrepo.Metrics) domrepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func observe(m domrepo.Metrics, op string, start time.Time) {
	m.RecordLatency(op, time.Since(start).Seconds())
}
