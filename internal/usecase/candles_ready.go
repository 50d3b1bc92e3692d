package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

// CandlesReadyHandler turns "candles loaded for date D" notifications from
// the ingestion side into daily_screen jobs.
type CandlesReadyHandler struct {
	topic      string
	dispatcher domrepo.JobDispatcher
	lgr        *applogger.Logger
	metrics    domrepo.Metrics
}

func NewCandlesReadyHandler(topic string, dispatcher domrepo.JobDispatcher, lgr *applogger.Logger, metrics domrepo.Metrics) *CandlesReadyHandler {
	return &CandlesReadyHandler{topic: topic, dispatcher: dispatcher, lgr: lgr, metrics: metricsOrNop(metrics)}
}

func (h *CandlesReadyHandler) Topic() string { return h.topic }

// incoming message schema: {"date": "YYYY-MM-DD", "market": "US"}
func (h *CandlesReadyHandler) Handle(ctx context.Context, b []byte) error {
	var m models.CandlesReady
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode candles-ready: %w", err)
	}
	date, ok := util.ParseDate(m.Date)
	if !ok {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("candles-ready: invalid date %q", m.Date)
	}
	payload := JobPayload{Date: util.FormatDate(date), Market: string(domrepo.NormalizeMarket(m.Market))}
	if err := h.dispatcher.Dispatch(ctx, JobDailyScreen, payload); err != nil {
		h.metrics.RecordError("dispatch")
		return fmt.Errorf("dispatch daily screen: %w", err)
	}
	h.lgr.Info("daily screen requested",
		applogger.String("date", payload.Date),
		applogger.String("market", payload.Market))
	return nil
}
