package httpadapter

import (
	"errors"
	"net/http"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrCaseNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCaseExists),
		domain.IsKind(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a domain error as JSON. Validation failures carry the
// full structured report so clients can tell missing scans from corrupt
// files; everything else gets a single error string, with internal failures
// redacted to a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, status, map[string]any{
			"error":          validationErr.Error(),
			"errors":         validationErr.FileErrors,
			"missing_files":  validationErr.MissingScans,
			"uploaded_files": validationErr.UploadedFiles,
			"detected_scans": validationErr.DetectedScans,
		})
		return
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
