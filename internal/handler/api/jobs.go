package api

import (
	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/http/middleware"
	applogger "SignalDesk/pkg/logger"
)

// JobsHandler enqueues background jobs on demand.
type JobsHandler struct {
	dispatcher domrepo.JobDispatcher
	auth       *middleware.JWT
	l          *applogger.Logger
}

func NewJobsHandler(dispatcher domrepo.JobDispatcher, auth *middleware.JWT, l *applogger.Logger) *JobsHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &JobsHandler{dispatcher: dispatcher, auth: auth, l: l}
}

func (h *JobsHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/jobs/:type", h.Enqueue, middleware.RequireJWT(h.auth))
}

func (h *JobsHandler) Enqueue(c echo.Context) error {
	req := &models.JobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr)
	}
	payload := usecase.JobPayload{Date: req.Date, Market: req.Market}
	if err := h.dispatcher.Dispatch(c.Request().Context(), req.Type, payload); err != nil {
		return respondError(c, h.l, "enqueue job failed", err, applogger.String("type", req.Type))
	}
	h.l.Info("job enqueued", applogger.String("type", req.Type), applogger.String("date", req.Date))
	return xhttp.AcceptedResponse(c, map[string]any{"type": req.Type, "date": req.Date, "market": req.Market})
}
