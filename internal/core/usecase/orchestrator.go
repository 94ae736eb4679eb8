package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

const pipelineVersion = "1.0.0"

// WorkerMetrics observes worker lifecycle for the metrics endpoint. A nil
// implementation is fine.
type WorkerMetrics interface {
	CaseStarted()
	CaseFinished(status domain.CaseStatus, duration time.Duration)
}

// JobOrchestrator owns the case state machine. It runs at most one worker
// per case id, tracks each worker through a managed handle, and serializes
// terminal commits per case so a worker finishing after a cancel request
// can never overwrite the cancelled status.
type JobOrchestrator struct {
	store    ports.CaseStore
	pipeline ports.PipelineRunner
	progress *ProgressTracker
	events   ports.EventPublisher
	logger   *slog.Logger
	metrics  WorkerMetrics

	rootCtx  context.Context
	rootStop context.CancelFunc

	viewerBaseURL  string
	resultsBaseURL string

	mu     sync.Mutex
	active map[string]*caseHandle
	// commitLocks holds exactly one mutex per case id, serializing every
	// "read current status, decide, write" sequence for that case: Start's
	// processing transition, Cancel, and worker terminal commits all contend
	// on the same lock whether or not a worker is live. Entries live for the
	// process lifetime, like the on-disk cases they guard. The lock is never
	// held across the blocking pipeline call.
	commitLocks map[string]*sync.Mutex

	wg sync.WaitGroup
}

type caseHandle struct {
	cancel context.CancelFunc
}

func NewJobOrchestrator(
	store ports.CaseStore,
	pipeline ports.PipelineRunner,
	progress *ProgressTracker,
	events ports.EventPublisher,
	logger *slog.Logger,
	metrics WorkerMetrics,
) *JobOrchestrator {
	if events == nil {
		events = noopEvents{}
	}
	rootCtx, rootStop := context.WithCancel(context.Background())
	return &JobOrchestrator{
		store:       store,
		pipeline:    pipeline,
		progress:    progress,
		events:      events,
		logger:      logger,
		metrics:     metrics,
		rootCtx:     rootCtx,
		rootStop:    rootStop,
		active:      make(map[string]*caseHandle),
		commitLocks: make(map[string]*sync.Mutex),
	}
}

// WithViewerURLs enables the external-viewer link written alongside completed
// cases. Both bases must be set; otherwise no link is produced.
func (o *JobOrchestrator) WithViewerURLs(viewerBase, resultsBase string) *JobOrchestrator {
	o.viewerBaseURL = strings.TrimRight(viewerBase, "/")
	o.resultsBaseURL = strings.TrimRight(resultsBase, "/")
	return o
}

// Start transitions an admitted case to processing and launches its worker.
// Workers outlive the submitting request, so they run under the
// orchestrator's own context rather than the caller's.
func (o *JobOrchestrator) Start(caseID string, bundle domain.AcceptedBundle) error {
	o.mu.Lock()
	if _, running := o.active[caseID]; running {
		o.mu.Unlock()
		return domain.WrapError(domain.ErrAlreadyRunning, "start case", fmt.Errorf("case %q", caseID))
	}
	workerCtx, cancel := context.WithCancel(o.rootCtx)
	handle := &caseHandle{cancel: cancel}
	o.active[caseID] = handle
	o.mu.Unlock()

	// The processing transition shares the case's commit guard with Cancel:
	// a cancel that lands during startup must stick, not be overwritten, and
	// its progress record must not be clobbered by the initial one.
	guard := o.commitGuard(caseID)
	guard.Lock()
	status, err := o.store.ReadStatus(caseID)
	if err != nil {
		guard.Unlock()
		o.release(caseID, cancel)
		return err
	}
	if status.IsTerminal() {
		guard.Unlock()
		o.release(caseID, cancel)
		return nil
	}
	initDetails := map[string]any{
		"files_validated": bundle.FileCount,
		"scan_types":      bundle.DetectedScans(),
	}
	if err := o.progress.Update(workerCtx, caseID, 0, domain.StepInitialization, "Starting analysis...", initDetails); err != nil {
		guard.Unlock()
		o.release(caseID, cancel)
		return fmt.Errorf("write initial progress: %w", err)
	}
	if err := o.store.WriteStatus(caseID, domain.StatusProcessing); err != nil {
		guard.Unlock()
		o.release(caseID, cancel)
		return fmt.Errorf("mark case processing: %w", err)
	}
	guard.Unlock()

	o.wg.Add(1)
	go o.runWorker(workerCtx, handle, caseID, bundle)
	return nil
}

// Cancel marks a case cancelled and signals its worker, if any. Cancelling
// an already-terminal case is a no-op success. The signal is advisory: the
// pipeline is not forcibly interrupted.
func (o *JobOrchestrator) Cancel(caseID string) error {
	exists, err := o.store.Exists(caseID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.WrapError(domain.ErrCaseNotFound, "cancel case", fmt.Errorf("case %q", caseID))
	}

	guard := o.commitGuard(caseID)
	guard.Lock()
	status, err := o.store.ReadStatus(caseID)
	if err != nil {
		guard.Unlock()
		return err
	}
	if status.IsTerminal() {
		guard.Unlock()
		return nil
	}
	if err := o.store.WriteStatus(caseID, domain.StatusCancelled); err != nil {
		guard.Unlock()
		return err
	}
	cancelledAt := time.Now().UTC()
	if err := o.progress.Update(context.Background(), caseID, 0, domain.StepCancelled, "Processing cancelled by user", map[string]any{
		"cancelled_at": cancelledAt.Format(time.RFC3339),
	}); err != nil {
		o.logger.Error("cancel_progress_write_failed", "case_id", caseID, "error", err)
	}
	guard.Unlock()

	// Advisory signal to the live worker, if one exists.
	o.mu.Lock()
	handle := o.active[caseID]
	o.mu.Unlock()
	if handle != nil {
		handle.cancel()
	}
	o.publishTerminal(caseID, domain.StatusCancelled, nil)
	o.logger.Info("case_cancelled", "case_id", caseID)
	return nil
}

// Shutdown waits for in-flight workers, up to ctx. The workers keep their
// advisory cancel signal untouched; a worker that outlives the wait leaves
// its case in processing, which the durable status reports as-is.
func (o *JobOrchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every worker's context and releases the orchestrator.
func (o *JobOrchestrator) Close() {
	o.rootStop()
}

// commitGuard returns the mutex serializing status commits for a case,
// creating it on first use. Every path that reads a case's status before
// deciding to write one must hold this lock.
func (o *JobOrchestrator) commitGuard(caseID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	guard, ok := o.commitLocks[caseID]
	if !ok {
		guard = &sync.Mutex{}
		o.commitLocks[caseID] = guard
	}
	return guard
}

func (o *JobOrchestrator) runWorker(ctx context.Context, handle *caseHandle, caseID string, bundle domain.AcceptedBundle) {
	defer o.wg.Done()
	defer o.release(caseID, handle.cancel)

	if o.metrics != nil {
		o.metrics.CaseStarted()
	}
	start := time.Now()

	// Nothing may escape the worker body: any failure, including a panic,
	// becomes a terminal error status so no job silently vanishes.
	outcome := domain.StatusError
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("worker_panic", "case_id", caseID, "panic", fmt.Sprint(r))
			outcome = o.commitError(caseID, fmt.Errorf("internal error: %v", r))
		}
		if o.metrics != nil {
			o.metrics.CaseFinished(outcome, time.Since(start))
		}
	}()

	err := o.processCase(ctx, caseID, bundle)
	if err != nil {
		o.logger.Error("case_failed", "case_id", caseID, "error", err)
		outcome = o.commitError(caseID, err)
		return
	}
	outcome = o.commitDone(caseID, bundle)
	o.logger.Info("case_completed", "case_id", caseID, "duration_ms", time.Since(start).Milliseconds())
}

func (o *JobOrchestrator) processCase(ctx context.Context, caseID string, bundle domain.AcceptedBundle) error {
	// The pipeline works on copies inside the results directory; originals
	// stay untouched in the upload directory.
	for modality, filename := range bundle.ScanFiles {
		path := o.store.ScanPath(caseID, filename)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("required %s scan file not found: %s", modality, path)
			}
			return fmt.Errorf("stat %s scan: %w", modality, err)
		}
	}
	for _, filename := range bundle.ScanFiles {
		if err := o.store.CopyScanToResults(caseID, filename); err != nil {
			return err
		}
	}

	if err := o.progress.Update(ctx, caseID, 10, domain.StepPipelineStart, "Starting AI analysis pipeline...", map[string]any{
		"scan_files": bundle.ScanFiles,
	}); err != nil {
		return err
	}

	return o.pipeline.Run(ctx, o.store.ResultsDir(caseID))
}

// commitDone finalizes a successful worker. Returns the status actually on
// disk afterwards, which is not done when a cancel won the race.
func (o *JobOrchestrator) commitDone(caseID string, bundle domain.AcceptedBundle) domain.CaseStatus {
	completion := map[string]any{
		"completion_time":  time.Now().UTC().Format(time.RFC3339),
		"pipeline_version": pipelineVersion,
	}
	var finalDetails map[string]any
	if url := o.viewerURL(caseID, bundle); url != "" {
		completion["viewer_url"] = url
		finalDetails = map[string]any{"viewer_url": url}
	}
	if err := o.store.MergeMetadata(caseID, completion); err != nil {
		o.logger.Warn("completion_metadata_write_failed", "case_id", caseID, "error", err)
	}

	guard := o.commitGuard(caseID)
	guard.Lock()
	defer guard.Unlock()

	current, err := o.store.ReadStatus(caseID)
	if err != nil {
		o.logger.Error("terminal_status_read_failed", "case_id", caseID, "error", err)
		return domain.StatusError
	}
	if current.IsTerminal() {
		// Last terminal wins: a cancel that landed while the pipeline was
		// running must not be overwritten with done.
		o.logger.Info("terminal_commit_skipped", "case_id", caseID, "status", current)
		return current
	}
	if err := o.store.WriteStatus(caseID, domain.StatusDone); err != nil {
		o.logger.Error("terminal_status_write_failed", "case_id", caseID, "error", err)
		return domain.StatusError
	}
	if err := o.progress.Update(context.Background(), caseID, 100, domain.StepCompleted, "Analysis completed successfully", finalDetails); err != nil {
		o.logger.Error("final_progress_write_failed", "case_id", caseID, "error", err)
	}
	o.publishTerminal(caseID, domain.StatusDone, nil)
	return domain.StatusDone
}

// commitError records a failed worker, unless a different terminal status is
// already on disk.
func (o *JobOrchestrator) commitError(caseID string, workerErr error) domain.CaseStatus {
	guard := o.commitGuard(caseID)
	guard.Lock()
	defer guard.Unlock()

	current, err := o.store.ReadStatus(caseID)
	if err != nil {
		o.logger.Error("terminal_status_read_failed", "case_id", caseID, "error", err)
		return domain.StatusError
	}
	if current.IsTerminal() {
		o.logger.Info("terminal_commit_skipped", "case_id", caseID, "status", current)
		return current
	}
	if err := o.store.WriteError(caseID, workerErr.Error()); err != nil {
		o.logger.Error("error_detail_write_failed", "case_id", caseID, "error", err)
	}
	if err := o.store.WriteStatus(caseID, domain.StatusError); err != nil {
		o.logger.Error("terminal_status_write_failed", "case_id", caseID, "error", err)
		return domain.StatusError
	}
	details := map[string]any{"error_type": errorType(workerErr)}
	if err := o.progress.Update(context.Background(), caseID, 0, domain.StepError, "Error: "+workerErr.Error(), details); err != nil {
		o.logger.Error("final_progress_write_failed", "case_id", caseID, "error", err)
	}
	o.publishTerminal(caseID, domain.StatusError, details)
	return domain.StatusError
}

// viewerURL builds the external viewer link for a completed case, pairing the
// preferred anatomical scan with the segmentation mask the pipeline produces.
func (o *JobOrchestrator) viewerURL(caseID string, bundle domain.AcceptedBundle) string {
	if o.viewerBaseURL == "" || o.resultsBaseURL == "" {
		return ""
	}
	scan, ok := bundle.ScanFiles[domain.ModalityT1CE]
	if !ok {
		scan = bundle.ScanFiles[domain.ModalityT1]
	}
	return fmt.Sprintf("%s/viewer?image1=%s/results/%s/%s&image2=%s/results/%s/%s_mask_resized.nii.gz",
		o.viewerBaseURL,
		o.resultsBaseURL, caseID, scan,
		o.resultsBaseURL, caseID, caseID,
	)
}

func (o *JobOrchestrator) publishTerminal(caseID string, status domain.CaseStatus, details map[string]any) {
	if err := o.events.PublishTerminal(context.Background(), ports.CaseEvent{
		EventID:   uuid.NewString(),
		CaseID:    caseID,
		Status:    string(status),
		Details:   details,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		o.logger.Warn("terminal_event_publish_failed", "case_id", caseID, "status", status, "error", err)
	}
}

func (o *JobOrchestrator) release(caseID string, cancel context.CancelFunc) {
	cancel()
	o.mu.Lock()
	delete(o.active, caseID)
	o.mu.Unlock()
}

// errorType tags persisted error details with a coarse failure class for
// client display and aggregation.
func errorType(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrPipeline):
		return "PipelineFailure"
	case errors.Is(err, fs.ErrNotExist):
		return "MissingInput"
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	default:
		return "InternalError"
	}
}
