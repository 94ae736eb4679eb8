package domain

import "time"

type CaseStatus string

const (
	StatusInitializing CaseStatus = "initializing"
	StatusProcessing   CaseStatus = "processing"
	StatusDone         CaseStatus = "done"
	StatusError        CaseStatus = "error"
	StatusCancelled    CaseStatus = "cancelled"
)

// IsTerminal reports whether a status permits no further transitions.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// Progress step tags. The polling frontend matches on these strings, so they
// are part of the wire contract.
const (
	StepInitialization = "initialization"
	StepPipelineStart  = "pipeline_start"
	StepCompleted      = "completed"
	StepError          = "error"
	StepCancelled      = "cancelled"
)

// Case is one patient/study's imaging bundle and its processing job.
type Case struct {
	ID        string              `json:"case_id"`
	Status    CaseStatus          `json:"status"`
	ScanFiles map[Modality]string `json:"scan_files,omitempty"`
	Metadata  map[string]any      `json:"metadata,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// ProgressRecord is the latest progress snapshot for a case. Only one record
// is current per case; history is not retained.
type ProgressRecord struct {
	Percentage int            `json:"percentage"`
	Step       string         `json:"step"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AcceptedBundle is what admission hands to the orchestrator: the validated
// modality map for a newly created case.
type AcceptedBundle struct {
	CaseID    string              `json:"case_id"`
	ScanFiles map[Modality]string `json:"scan_files"`
	FileCount int                 `json:"file_count"`
}

// DetectedScans lists the classified modality tags in stable order.
func (b AcceptedBundle) DetectedScans() []string {
	out := make([]string, 0, len(b.ScanFiles))
	for _, m := range AllModalities() {
		if _, ok := b.ScanFiles[m]; ok {
			out = append(out, string(m))
		}
	}
	return out
}
