package ports

import (
	"context"
	"io"
	"time"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

// UploadFile is one (filename, byte stream) pair from the upload boundary.
// Filenames are sanitized to safe path segments before reaching the core.
type UploadFile struct {
	Filename string
	Body     io.Reader
}

// CaseAdmitter is the inbound contract for bundle validation and admission.
type CaseAdmitter interface {
	Admit(ctx context.Context, caseID string, files []UploadFile) (domain.AcceptedBundle, error)
}

// CaseRunner starts and cancels the background job for an admitted case.
type CaseRunner interface {
	Start(caseID string, bundle domain.AcceptedBundle) error
	Cancel(caseID string) error
}

// CaseSnapshot is the polling-friendly view of one case: always the status,
// plus whichever of progress/error/results applies to it.
type CaseSnapshot struct {
	CaseID    string
	Status    domain.CaseStatus
	Progress  *domain.ProgressRecord
	Error     string
	Results   map[string]string
	Metadata  map[string]any
	CreatedAt time.Time
}

// CaseReader is the inbound read model for case state.
type CaseReader interface {
	Snapshot(ctx context.Context, caseID string) (CaseSnapshot, error)
	Progress(ctx context.Context, caseID string) (domain.ProgressRecord, error)
	Exists(ctx context.Context, caseID string) (bool, error)
	List(ctx context.Context) ([]CaseSnapshot, error)
}
