package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// storeFake keeps case records in memory but backs scan files with a real
// temp directory so filesystem checks in the worker hold up.
type storeFake struct {
	mu  sync.Mutex
	dir string

	statuses map[string]domain.CaseStatus
	progress map[string]domain.ProgressRecord
	errs     map[string]string
	metadata map[string]map[string]any
	results  map[string]map[string]string
	copied   map[string][]string

	deleted      []string
	statusWrites []domain.CaseStatus

	createErr error
}

func newStoreFake(dir string) *storeFake {
	return &storeFake{
		dir:      dir,
		statuses: map[string]domain.CaseStatus{},
		progress: map[string]domain.ProgressRecord{},
		errs:     map[string]string{},
		metadata: map[string]map[string]any{},
		results:  map[string]map[string]string{},
		copied:   map[string][]string{},
	}
}

func (f *storeFake) Create(caseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.statuses[caseID]; ok {
		return domain.WrapError(domain.ErrCaseExists, "create case", fmt.Errorf("case %q", caseID))
	}
	f.statuses[caseID] = domain.StatusInitializing
	return os.MkdirAll(filepath.Join(f.dir, caseID), 0o755)
}

func (f *storeFake) Delete(caseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statuses, caseID)
	delete(f.progress, caseID)
	delete(f.errs, caseID)
	delete(f.metadata, caseID)
	f.deleted = append(f.deleted, caseID)
	return os.RemoveAll(filepath.Join(f.dir, caseID))
}

func (f *storeFake) Exists(caseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.statuses[caseID]
	return ok, nil
}

func (f *storeFake) List() ([]domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Case, 0, len(f.statuses))
	for id, status := range f.statuses {
		out = append(out, domain.Case{ID: id, Status: status, Metadata: f.metadata[id]})
	}
	return out, nil
}

func (f *storeFake) ReadStatus(caseID string) (domain.CaseStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[caseID]
	if !ok {
		return "", domain.WrapError(domain.ErrCaseNotFound, "read status", fmt.Errorf("case %q", caseID))
	}
	return status, nil
}

func (f *storeFake) WriteStatus(caseID string, status domain.CaseStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[caseID]; !ok {
		return domain.WrapError(domain.ErrCaseNotFound, "write status", fmt.Errorf("case %q", caseID))
	}
	f.statuses[caseID] = status
	f.statusWrites = append(f.statusWrites, status)
	return nil
}

func (f *storeFake) ReadProgress(caseID string) (domain.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.progress[caseID]
	if !ok {
		return domain.ProgressRecord{}, domain.WrapError(domain.ErrCaseNotFound, "read progress", fmt.Errorf("case %q", caseID))
	}
	return record, nil
}

func (f *storeFake) WriteProgress(caseID string, record domain.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[caseID]; !ok {
		return domain.WrapError(domain.ErrCaseNotFound, "write progress", fmt.Errorf("case %q", caseID))
	}
	f.progress[caseID] = record
	return nil
}

func (f *storeFake) ReadError(caseID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.errs[caseID]
	if !ok {
		return "", domain.WrapError(domain.ErrCaseNotFound, "read error", fmt.Errorf("case %q", caseID))
	}
	return detail, nil
}

func (f *storeFake) WriteError(caseID, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[caseID] = detail
	return nil
}

func (f *storeFake) ReadMetadata(caseID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	metadata, ok := f.metadata[caseID]
	if !ok {
		return map[string]any{}, nil
	}
	return metadata, nil
}

func (f *storeFake) WriteMetadata(caseID string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[caseID] = metadata
	return nil
}

func (f *storeFake) MergeMetadata(caseID string, update map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	metadata, ok := f.metadata[caseID]
	if !ok {
		metadata = map[string]any{}
	}
	for k, v := range update {
		metadata[k] = v
	}
	f.metadata[caseID] = metadata
	return nil
}

func (f *storeFake) ReadResults(caseID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results, ok := f.results[caseID]
	if !ok {
		return map[string]string{}, nil
	}
	return results, nil
}

func (f *storeFake) SaveScan(caseID, filename string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	return os.WriteFile(f.ScanPath(caseID, filename), raw, 0o644)
}

func (f *storeFake) CopyScanToResults(caseID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copied[caseID] = append(f.copied[caseID], filename)
	return nil
}

func (f *storeFake) ScanPath(caseID, filename string) string {
	return filepath.Join(f.dir, caseID, filename)
}

func (f *storeFake) ResultsDir(caseID string) string {
	return filepath.Join(f.dir, caseID)
}

func (f *storeFake) CreatedAt(string) (time.Time, error) {
	return time.Now(), nil
}

func (f *storeFake) status(caseID string) domain.CaseStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[caseID]
}

func (f *storeFake) progressRecord(caseID string) domain.ProgressRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[caseID]
}

// validatorFake fails exactly the filenames listed in reject.
type validatorFake struct {
	reject map[string]bool
}

func (f *validatorFake) Validate(path string) error {
	if f.reject[filepath.Base(path)] {
		return fmt.Errorf("not a NIfTI file")
	}
	return nil
}

// pipelineFake optionally blocks until released, so tests can hold a worker
// mid-pipeline while racing a cancel against it.
type pipelineFake struct {
	mu      sync.Mutex
	started chan struct{}
	release chan struct{}
	err     error
	gotDir  string
}

func newBlockingPipeline() *pipelineFake {
	return &pipelineFake{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (f *pipelineFake) Run(ctx context.Context, resultsDir string) error {
	f.mu.Lock()
	f.gotDir = resultsDir
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.WrapError(domain.ErrPipeline, "run pipeline", ctx.Err())
		}
	}
	return f.err
}

// eventsFake records published events and signals terminal publishes.
type eventsFake struct {
	mu       sync.Mutex
	admitted []ports.CaseEvent
	progress []ports.CaseEvent
	terminal []ports.CaseEvent

	terminalCh chan ports.CaseEvent
	publishErr error
}

func newEventsFake() *eventsFake {
	return &eventsFake{terminalCh: make(chan ports.CaseEvent, 8)}
}

func (f *eventsFake) PublishAdmitted(_ context.Context, event ports.CaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.admitted = append(f.admitted, event)
	return nil
}

func (f *eventsFake) PublishProgress(_ context.Context, event ports.CaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.progress = append(f.progress, event)
	return nil
}

func (f *eventsFake) PublishTerminal(_ context.Context, event ports.CaseEvent) error {
	f.mu.Lock()
	f.terminal = append(f.terminal, event)
	f.mu.Unlock()
	select {
	case f.terminalCh <- event:
	default:
	}
	return nil
}
