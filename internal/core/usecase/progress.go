package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

// ProgressTracker writes typed progress updates through the CaseStore. Only
// the latest record is kept per case; callers are trusted to supply
// non-decreasing percentages while a case is processing.
type ProgressTracker struct {
	store  ports.CaseStore
	events ports.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewProgressTracker(store ports.CaseStore, events ports.EventPublisher, logger *slog.Logger) *ProgressTracker {
	if events == nil {
		events = noopEvents{}
	}
	return &ProgressTracker{
		store:  store,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *ProgressTracker) Update(ctx context.Context, caseID string, percentage int, step, message string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	record := domain.ProgressRecord{
		Percentage: percentage,
		Step:       step,
		Message:    message,
		Details:    details,
		Timestamp:  t.now(),
	}
	if err := t.store.WriteProgress(caseID, record); err != nil {
		return err
	}

	// Event delivery is best effort; the durable record above is the contract.
	if err := t.events.PublishProgress(ctx, ports.CaseEvent{
		EventID:   uuid.NewString(),
		CaseID:    caseID,
		Step:      step,
		Details:   details,
		Timestamp: record.Timestamp,
	}); err != nil {
		t.logger.Warn("progress_event_publish_failed", "case_id", caseID, "step", step, "error", err)
	}
	return nil
}

type noopEvents struct{}

func (noopEvents) PublishAdmitted(context.Context, ports.CaseEvent) error { return nil }
func (noopEvents) PublishProgress(context.Context, ports.CaseEvent) error { return nil }
func (noopEvents) PublishTerminal(context.Context, ports.CaseEvent) error { return nil }
