package handlers

import (
	"errors"
	"net/http"

	"github.com/yungbote/research-reports/internal/platform/apierr"
	"github.com/yungbote/research-reports/internal/reportgen"
)

// reportAPIError maps pipeline errors to transport errors. Unknown errors keep fallback.
func reportAPIError(err error, fallback *apierr.Error) *apierr.Error {
	var pe *reportgen.PersistenceError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reportgen.ErrReportNotFound):
		return apierr.NotFound("report_not_found", err)
	case errors.Is(err, reportgen.ErrInvalidConfiguration):
		return apierr.BadRequest("invalid_configuration", err)
	case errors.Is(err, reportgen.ErrInvalidCollection):
		return apierr.BadRequest("invalid_collection", err)
	case errors.Is(err, reportgen.ErrInvalidVariationFormat):
		return apierr.New(http.StatusUnprocessableEntity, "invalid_variation_format", err)
	case errors.Is(err, reportgen.ErrGenerationInProgress):
		return apierr.Conflict("generation_in_progress", err)
	case errors.Is(err, reportgen.ErrGenerationCancelled):
		return apierr.Conflict("generation_cancelled", err)
	case errors.As(err, &pe):
		if pe.Conflict {
			return apierr.Conflict("persistence_conflict", err)
		}
		return apierr.Unavailable("persistence_unavailable", err)
	}
	if fallback == nil {
		return apierr.Internal("internal_error", err)
	}
	fallback.Err = err
	return fallback
}
