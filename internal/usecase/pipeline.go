package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type PipelineConfig struct {
	// Strategies vote in the ensemble.
	Strategies []string
	// Standalone strategies also persist their own actionable signals. Must be
	// a subset of Strategies.
	Standalone []string
	Params     map[string]service.Params
	Market     domrepo.Market
	LeaseTTL   time.Duration
}

// PipelineService runs the end-of-day flow: screen, vote, persist, rank.
type PipelineService struct {
	ensemble *EnsembleService
	ranking  *RankingService
	signals  domrepo.SignalRepository
	locker   domrepo.RunLocker
	cfg      PipelineConfig
	events   emitter
	lgr      *applogger.Logger
	metrics  domrepo.Metrics
}

func NewPipelineService(
	ensemble *EnsembleService,
	ranking *RankingService,
	signals domrepo.SignalRepository,
	locker domrepo.RunLocker,
	publisher domrepo.EventPublisher,
	cfg PipelineConfig,
	lgr *applogger.Logger,
	metrics domrepo.Metrics,
) *PipelineService {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Minute
	}
	if cfg.Market == "" {
		cfg.Market = domrepo.DefaultMarket()
	}
	return &PipelineService{
		ensemble: ensemble,
		ranking:  ranking,
		signals:  signals,
		locker:   locker,
		cfg:      cfg,
		events:   emitter{pub: publisher, lgr: lgr, now: time.Now},
		lgr:      lgr,
		metrics:  metricsOrNop(metrics),
	}
}

// RunDaily holds the per-date lease for the whole run. A second caller for
// the same date gets ErrRunInProgress.
func (s *PipelineService) RunDaily(ctx context.Context, date time.Time, market domrepo.Market) (*models.RunSummary, error) {
	if market == "" {
		market = s.cfg.Market
	}
	date = util.Day(date)
	start := time.Now()
	defer observe(s.metrics, "pipeline", start)

	var summary models.RunSummary
	err := withLease(ctx, s.locker, leaseKey(date, market), s.cfg.LeaseTTL, func(ctx context.Context) error {
		runID := uuid.NewString()
		res, screened, err := s.ensemble.run(ctx, EnsembleParams{
			Strategies: s.cfg.Strategies,
			Date:       date,
			Market:     market,
			Params:     s.cfg.Params,
			Persist:    true,
		}, runID)
		if err != nil {
			return err
		}
		summary = res.Summary

		n, err := s.persistStandalone(ctx, screened.Signals, runID)
		if err != nil {
			return err
		}
		summary.Persisted += n

		ranked, err := s.ranking.RankPending(ctx, date)
		if err != nil {
			return err
		}
		summary.Ranked = ranked
		return nil
	})
	if err != nil {
		s.metrics.RecordError("pipeline")
		s.lgr.Error("daily pipeline failed",
			applogger.Date("date", date),
			applogger.String("market", string(market)),
			applogger.Error(err))
		return nil, err
	}

	s.events.emit(ctx, models.EventPipelineCompleted, util.FormatDate(date), summary)
	s.lgr.Info("daily pipeline completed",
		applogger.String("run_id", summary.RunID),
		applogger.Date("date", date),
		applogger.Int("persisted", summary.Persisted),
		applogger.Int("ranked", summary.Ranked),
		applogger.Duration("took_ms", time.Since(start)))
	return &summary, nil
}

func (s *PipelineService) persistStandalone(ctx context.Context, raw []models.RawSignal, runID string) (int, error) {
	if len(s.cfg.Standalone) == 0 {
		return 0, nil
	}
	keep := make(map[string]bool, len(s.cfg.Standalone))
	for _, code := range s.cfg.Standalone {
		keep[code] = true
	}
	rows := make([]models.PendingSignal, 0)
	for _, sig := range raw {
		// SELL crosses are exits for a long book, not entries
		if keep[sig.StrategyCode] && sig.Side == models.SideBuy {
			rows = append(rows, models.PendingFromRaw(sig, runID))
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.signals.InsertPending(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("persist standalone signals: %w", err)
	}
	s.metrics.RecordSignals("persisted", n)
	return n, nil
}
