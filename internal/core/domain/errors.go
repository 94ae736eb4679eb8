package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCaseNotFound   = errors.New("case not found")
	ErrCaseExists     = errors.New("case id already exists")
	ErrAlreadyRunning = errors.New("case is already running")
	ErrValidation     = errors.New("bundle validation failed")
	ErrPipeline       = errors.New("pipeline failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError carries the structured detail a client needs to fix a
// rejected bundle: which files were malformed, which required modalities
// were missing, and what was detected.
type ValidationError struct {
	CaseID        string   `json:"case_id"`
	FileErrors    []string `json:"errors,omitempty"`
	MissingScans  []string `json:"missing_files,omitempty"`
	UploadedFiles []string `json:"uploaded_files,omitempty"`
	DetectedScans []string `json:"detected_scans,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.MissingScans) > 0 {
		return fmt.Sprintf("missing required scan files: %s", strings.Join(e.MissingScans, ", "))
	}
	if len(e.FileErrors) > 0 {
		return fmt.Sprintf("file validation errors: %s", strings.Join(e.FileErrors, "; "))
	}
	return ErrValidation.Error()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
