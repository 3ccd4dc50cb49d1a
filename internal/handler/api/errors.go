package api

import (
	"context"
	"errors"

	"PricePulse/internal/domain/models"
	xhttp "PricePulse/pkg/http"
)

// toAppError maps domain errors onto API errors. The message keeps the failing
// stage so clients can tell feature building from catalog lookup.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var out *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		out = xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrInsufficientData):
		out = xhttp.UnprocessableError(err.Error())
		out.Code = "ERR_INSUFFICIENT_DATA"
	case errors.Is(err, models.ErrInvalidInput):
		out = xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrDatasetUnavailable), errors.Is(err, context.DeadlineExceeded):
		out = xhttp.ServiceUnavailableError("dataset unavailable, try again later")
	default:
		out = xhttp.InternalError("internal error")
	}
	var se *models.StageError
	if errors.As(err, &se) {
		out.WithParam("stage", se.Stage)
	}
	return out.WithError(err)
}
