package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

func TestProgressUpdateWritesRecordAndPublishes(t *testing.T) {
	store := newStoreFake(t.TempDir())
	events := newEventsFake()
	tracker := NewProgressTracker(store, events, testLogger())

	if err := store.Create("case-1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := tracker.Update(context.Background(), "case-1", 10, domain.StepPipelineStart, "Starting AI analysis pipeline...", nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	record := store.progressRecord("case-1")
	if record.Percentage != 10 || record.Step != domain.StepPipelineStart {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Details == nil {
		t.Fatalf("expected non-nil details")
	}
	if record.Timestamp.IsZero() || record.Timestamp.Location() != record.Timestamp.UTC().Location() {
		t.Fatalf("expected UTC timestamp, got %v", record.Timestamp)
	}
	if len(events.progress) != 1 || events.progress[0].Step != domain.StepPipelineStart {
		t.Fatalf("expected progress event, got %v", events.progress)
	}
	if events.progress[0].EventID == "" {
		t.Fatalf("expected event id")
	}
}

func TestProgressUpdateSurvivesPublishFailure(t *testing.T) {
	store := newStoreFake(t.TempDir())
	events := newEventsFake()
	events.publishErr = errors.New("nats down")
	tracker := NewProgressTracker(store, events, testLogger())

	if err := store.Create("case-1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := tracker.Update(context.Background(), "case-1", 0, domain.StepInitialization, "Starting analysis...", nil); err != nil {
		t.Fatalf("Update() should not fail on publish error, got %v", err)
	}
}

func TestProgressUpdateFailsForMissingCase(t *testing.T) {
	store := newStoreFake(t.TempDir())
	tracker := NewProgressTracker(store, nil, testLogger())

	err := tracker.Update(context.Background(), "ghost", 0, domain.StepInitialization, "Starting analysis...", nil)
	if !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}
