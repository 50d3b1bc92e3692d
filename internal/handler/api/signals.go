package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/http/middleware"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type ensembleRunner interface {
	Run(ctx context.Context, p usecase.EnsembleParams) (*usecase.EnsembleResult, error)
}

type pendingRanker interface {
	RankPending(ctx context.Context, date time.Time) (int, error)
}

type signalLifecycle interface {
	ExecuteSignal(ctx context.Context, id uint64, opts usecase.ExecuteOptions) (*models.PendingSignal, *models.Position, error)
	IgnoreSignal(ctx context.Context, id uint64) (*models.PendingSignal, error)
	ClosePosition(ctx context.Context, id uint64, exitPrice *float64) (*models.Position, error)
}

type signalReader interface {
	List(ctx context.Context, f domrepo.SignalFilter) ([]models.PendingSignal, error)
}

// SignalsHandler serves the ensemble run and the PENDING signal lifecycle.
type SignalsHandler struct {
	ensemble  ensembleRunner
	ranking   pendingRanker
	lifecycle signalLifecycle
	signals   signalReader
	auth      *middleware.JWT
	l         *applogger.Logger
	now       func() time.Time
}

func NewSignalsHandler(
	ensemble ensembleRunner,
	ranking pendingRanker,
	lifecycle signalLifecycle,
	signals signalReader,
	auth *middleware.JWT,
	l *applogger.Logger,
) *SignalsHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SignalsHandler{
		ensemble:  ensemble,
		ranking:   ranking,
		lifecycle: lifecycle,
		signals:   signals,
		auth:      auth,
		l:         l,
		now:       time.Now,
	}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/signals", h.List)

	auth := middleware.RequireJWT(h.auth)
	g.POST("/ensemble/run", h.RunEnsemble, auth)
	g.POST("/signals/rank", h.Rank, auth)
	g.POST("/signals/:id/execute", h.Execute, auth)
	g.POST("/signals/:id/ignore", h.Ignore, auth)
}

func (h *SignalsHandler) RunEnsemble(c echo.Context) error {
	req := &models.EnsembleRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	params := make(map[string]service.Params, len(req.Params))
	for code, p := range req.Params {
		params[code] = p
	}

	res, err := h.ensemble.Run(c.Request().Context(), usecase.EnsembleParams{
		Strategies: req.Strategies,
		Date:       util.ParseDateDefault(req.Date, h.now()),
		Market:     domrepo.NormalizeMarket(req.Market),
		Symbols:    req.Symbols,
		Params:     params,
		Persist:    req.Persist,
	})
	if err != nil {
		return h.fail(c, "ensemble run failed", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsHandler) Rank(c echo.Context) error {
	req := &models.RankRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	date := util.ParseDateDefault(req.Date, h.now())
	n, err := h.ranking.RankPending(c.Request().Context(), date)
	if err != nil {
		return h.fail(c, "rank pending failed", err)
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"date":   util.FormatDate(date),
		"ranked": n,
	})
}

func (h *SignalsHandler) List(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	f := domrepo.SignalFilter{Status: models.SignalStatus(req.Status), Limit: req.Limit}
	if d, ok := util.ParseDate(req.Date); ok {
		f.Date = &d
	}
	rows, err := h.signals.List(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, "list signals failed", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) Execute(c echo.Context) error {
	req := &models.ExecuteSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	sig, pos, err := h.lifecycle.ExecuteSignal(c.Request().Context(), req.ID, usecase.ExecuteOptions{
		Quantity:   req.Quantity,
		EntryPrice: req.EntryPrice,
	})
	if err != nil {
		return h.fail(c, "execute signal failed", err, applogger.Uint64("signal_id", req.ID))
	}
	return xhttp.CreatedResponse(c, map[string]any{
		"signal":   sig,
		"position": pos,
	})
}

func (h *SignalsHandler) Ignore(c echo.Context) error {
	req := &models.SignalIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	sig, err := h.lifecycle.IgnoreSignal(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "ignore signal failed", err, applogger.Uint64("signal_id", req.ID))
	}
	return xhttp.SuccessResponse(c, sig)
}

// fail logs server-side errors and renders the mapped AppError. Client errors
// are not logged above Debug.
func (h *SignalsHandler) fail(c echo.Context, msg string, err error, fields ...applogger.Field) error {
	return respondError(c, h.l, msg, err, fields...)
}

func respondError(c echo.Context, l *applogger.Logger, msg string, err error, fields ...applogger.Field) error {
	mapped := appError(err)
	fields = append(fields, applogger.Error(err))
	if ae, ok := mapped.(*xhttp.AppError); ok && ae.Status < http.StatusInternalServerError {
		l.Debug(msg, fields...)
	} else {
		l.Error(msg, fields...)
	}
	return xhttp.AppErrorResponse(c, mapped)
}
