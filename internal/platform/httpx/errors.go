// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/assettrack/internal/shared"
	"github.com/odyssey-erp/assettrack/internal/sheet"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = shared.ErrNotFound
	ErrDuplicate  = shared.ErrDuplicate
	ErrValidation = shared.ErrValidation
	ErrLocked     = shared.ErrLocked
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var missingCols *sheet.MissingColumnsError
	var missingSheet *sheet.MissingSheetError
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &missingCols), errors.As(err, &missingSheet):
		Problem(w, http.StatusBadRequest, "Malformed Spreadsheet", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrLocked):
		Problem(w, http.StatusConflict, "Busy", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Result Unknown", "operation timed out; re-check state before retrying")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", err.Error())
	}
}
