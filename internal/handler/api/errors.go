package api

import (
	"errors"

	"SignalDesk/internal/domain/models"
	xhttp "SignalDesk/pkg/http"
)

// appError maps domain sentinels onto API errors. Unknown errors pass through
// and are rendered as 500s.
func appError(err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrSignalNotFound):
		return xhttp.NotFoundError("signal not found").WithError(err)
	case errors.Is(err, models.ErrPositionNotFound):
		return xhttp.NotFoundError("position not found").WithError(err)
	case errors.Is(err, models.ErrSnapshotNotFound):
		return xhttp.NotFoundError("no allocation for date").WithError(err)
	case errors.Is(err, models.ErrInvalidTransition):
		return xhttp.ConflictError(xhttp.CodeInvalidTransition, err.Error()).WithError(err)
	case errors.Is(err, models.ErrRunInProgress):
		return xhttp.ConflictError(xhttp.CodeRunInProgress, err.Error()).WithError(err)
	case errors.Is(err, models.ErrInvalidParams),
		errors.Is(err, models.ErrInvalidSetup),
		errors.Is(err, models.ErrQuantityRequired),
		errors.Is(err, models.ErrUnknownStrategy),
		errors.Is(err, models.ErrInvalidAllocation):
		return xhttp.ValidationErr("", err.Error()).WithError(err)
	}
	return err
}
