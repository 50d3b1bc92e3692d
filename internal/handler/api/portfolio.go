package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/http/middleware"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type allocator interface {
	Allocate(ctx context.Context, p usecase.AllocationParams) (*models.AllocationSnapshot, error)
	Latest(ctx context.Context, date time.Time) (*models.AllocationSnapshot, error)
}

type positionCloser interface {
	ClosePosition(ctx context.Context, id uint64, exitPrice *float64) (*models.Position, error)
}

type positionReader interface {
	List(ctx context.Context, f domrepo.PositionFilter) ([]models.Position, error)
}

// PortfolioHandler serves allocation snapshots and positions.
type PortfolioHandler struct {
	allocations allocator
	closer      positionCloser
	positions   positionReader
	auth        *middleware.JWT
	l           *applogger.Logger
	now         func() time.Time
}

func NewPortfolioHandler(allocations allocator, closer positionCloser, positions positionReader, auth *middleware.JWT, l *applogger.Logger) *PortfolioHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &PortfolioHandler{allocations: allocations, closer: closer, positions: positions, auth: auth, l: l, now: time.Now}
}

func (h *PortfolioHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/allocations/latest", h.LatestAllocation)
	g.GET("/positions", h.ListPositions)

	auth := middleware.RequireJWT(h.auth)
	g.POST("/allocations", h.Allocate, auth)
	g.POST("/positions/:id/close", h.ClosePosition, auth)
}

func (h *PortfolioHandler) Allocate(c echo.Context) error {
	req := &models.AllocationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	snap, err := h.allocations.Allocate(c.Request().Context(), usecase.AllocationParams{
		Date:            util.ParseDateDefault(req.Date, h.now()),
		TotalCapital:    req.TotalCapital,
		RiskPerTradePct: req.RiskPerTradePct,
		MaxOpenTrades:   req.MaxOpenTrades,
	})
	if err != nil {
		return respondError(c, h.l, "allocation failed", err)
	}
	return xhttp.CreatedResponse(c, snap)
}

func (h *PortfolioHandler) LatestAllocation(c echo.Context) error {
	req := &models.LatestAllocationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	snap, err := h.allocations.Latest(c.Request().Context(), util.ParseDateDefault(req.Date, h.now()))
	if err != nil {
		return respondError(c, h.l, "latest allocation failed", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *PortfolioHandler) ListPositions(c echo.Context) error {
	req := &models.ListPositionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	rows, err := h.positions.List(c.Request().Context(), domrepo.PositionFilter{
		Status: models.PositionStatus(req.Status),
		Limit:  req.Limit,
	})
	if err != nil {
		return respondError(c, h.l, "list positions failed", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// ClosePosition closes manually. Without exit_price the latest quote is used.
func (h *PortfolioHandler) ClosePosition(c echo.Context) error {
	req := &models.ClosePositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	pos, err := h.closer.ClosePosition(c.Request().Context(), req.ID, req.ExitPrice)
	if err != nil {
		return respondError(c, h.l, "close position failed", err, applogger.Uint64("position_id", req.ID))
	}
	return xhttp.SuccessResponse(c, pos)
}
