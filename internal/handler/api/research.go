package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type backtester interface {
	Run(ctx context.Context, p usecase.BacktestParams) (*usecase.BacktestReport, error)
}

type candleReader interface {
	GetCandles(ctx context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error)
}

// ResearchHandler serves read-only backtests and candle history.
type ResearchHandler struct {
	backtests backtester
	candles   candleReader
	l         *applogger.Logger
	now       func() time.Time
}

func NewResearchHandler(backtests backtester, candles candleReader, l *applogger.Logger) *ResearchHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ResearchHandler{backtests: backtests, candles: candles, l: l, now: time.Now}
}

func (h *ResearchHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/backtests", h.Backtest)
	g.GET("/candles", h.Candles)
}

func (h *ResearchHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	rep, err := h.backtests.Run(c.Request().Context(), usecase.BacktestParams{
		Strategy: req.Strategy,
		Symbols:  req.Symbols,
		Market:   domrepo.NormalizeMarket(req.Market),
		Date:     util.ParseDateDefault(req.Date, h.now()),
		Bars:     req.Bars,
		Params:   req.Params,
	})
	if err != nil {
		return respondError(c, h.l, "backtest failed", err, applogger.String("strategy", req.Strategy))
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *ResearchHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol: req.Symbol,
		UpTo:   util.ParseDateDefault(req.Date, h.now()),
		Limit:  req.Limit,
	})
	if err != nil {
		return respondError(c, h.l, "get candles failed", err, applogger.String("symbol", req.Symbol))
	}
	return xhttp.SuccessResponse(c, res)
}
