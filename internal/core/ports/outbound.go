package ports

import (
	"context"
	"io"
	"time"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

// CaseStore is the durable per-case record, backed by a directory pair per
// case. The status it holds is the ground truth for whether a case is
// terminal, across process restarts.
type CaseStore interface {
	// Create makes the case's upload and results directories together or not
	// at all, and marks the case initializing. Returns ErrCaseExists when the
	// id is already taken.
	Create(caseID string) error
	Delete(caseID string) error
	Exists(caseID string) (bool, error)
	List() ([]domain.Case, error)

	ReadStatus(caseID string) (domain.CaseStatus, error)
	WriteStatus(caseID string, status domain.CaseStatus) error

	ReadProgress(caseID string) (domain.ProgressRecord, error)
	WriteProgress(caseID string, record domain.ProgressRecord) error

	ReadError(caseID string) (string, error)
	WriteError(caseID string, detail string) error

	ReadMetadata(caseID string) (map[string]any, error)
	WriteMetadata(caseID string, metadata map[string]any) error
	// MergeMetadata extends the stored metadata in place, keeping existing
	// keys that the update does not name.
	MergeMetadata(caseID string, update map[string]any) error

	ReadResults(caseID string) (map[string]string, error)

	SaveScan(caseID, filename string, data io.Reader) error
	CopyScanToResults(caseID, filename string) error
	ScanPath(caseID, filename string) string
	ResultsDir(caseID string) string
	CreatedAt(caseID string) (time.Time, error)
}

// ScanValidator checks that a stored file is a well-formed volumetric scan.
type ScanValidator interface {
	Validate(path string) error
}

// PipelineRunner is the opaque analysis pipeline collaborator. The call
// blocks until the pipeline finishes; ctx carries the advisory cancellation
// signal. It reads and writes only inside resultsDir.
type PipelineRunner interface {
	Run(ctx context.Context, resultsDir string) error
}

// CaseEvent is a lifecycle notification published for push-style consumers.
type CaseEvent struct {
	EventID   string         `json:"event_id"`
	CaseID    string         `json:"case_id"`
	Status    string         `json:"status,omitempty"`
	Step      string         `json:"step,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventPublisher emits case lifecycle events. Publishing is advisory: a
// failed publish must never fail the case.
type EventPublisher interface {
	PublishAdmitted(ctx context.Context, event CaseEvent) error
	PublishProgress(ctx context.Context, event CaseEvent) error
	PublishTerminal(ctx context.Context, event CaseEvent) error
}
