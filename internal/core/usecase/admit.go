package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

// AdmitCaseUseCase is the validation gate: it stores an uploaded bundle,
// classifies and validates every scan, and either admits the case or rolls
// the whole submission back so the id stays free for a retry.
type AdmitCaseUseCase struct {
	store     ports.CaseStore
	validator ports.ScanValidator
	events    ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewAdmitCaseUseCase(store ports.CaseStore, validator ports.ScanValidator, events ports.EventPublisher, logger *slog.Logger) *AdmitCaseUseCase {
	if events == nil {
		events = noopEvents{}
	}
	return &AdmitCaseUseCase{
		store:     store,
		validator: validator,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AdmitCaseUseCase) Admit(ctx context.Context, caseID string, files []ports.UploadFile) (domain.AcceptedBundle, error) {
	if domain.SanitizeSegment(caseID) != caseID || caseID == "" {
		return domain.AcceptedBundle{}, domain.WrapError(domain.ErrValidation, "admit case", fmt.Errorf("case id %q is not a safe path segment", caseID))
	}
	if len(files) == 0 {
		return domain.AcceptedBundle{}, domain.WrapError(domain.ErrValidation, "admit case", errors.New("no files were uploaded"))
	}

	if err := uc.store.Create(caseID); err != nil {
		return domain.AcceptedBundle{}, err
	}

	bundle, vErr := uc.storeAndClassify(caseID, files)
	if vErr != nil {
		// A rejected submission must leave no residue so the same case id
		// can be resubmitted immediately.
		if err := uc.store.Delete(caseID); err != nil {
			uc.logger.Error("rollback_failed", "case_id", caseID, "error", err)
		}
		uc.logger.Warn("bundle_rejected", "case_id", caseID, "error", vErr)
		return domain.AcceptedBundle{}, vErr
	}

	metadata := map[string]any{
		"case_id":             caseID,
		"upload_time":         uc.now().Format(time.RFC3339),
		"files":               uploadedNames(files),
		"scan_files":          bundle.ScanFiles,
		"validation_status":   "passed",
		"file_count":          bundle.FileCount,
		"detected_scan_types": bundle.DetectedScans(),
	}
	if err := uc.store.WriteMetadata(caseID, metadata); err != nil {
		_ = uc.store.Delete(caseID)
		return domain.AcceptedBundle{}, fmt.Errorf("persist case metadata: %w", err)
	}

	if err := uc.events.PublishAdmitted(ctx, ports.CaseEvent{
		EventID:   uuid.NewString(),
		CaseID:    caseID,
		Status:    string(domain.StatusInitializing),
		Details:   map[string]any{"detected_scans": bundle.DetectedScans()},
		Timestamp: uc.now(),
	}); err != nil {
		uc.logger.Warn("admitted_event_publish_failed", "case_id", caseID, "error", err)
	}

	uc.logger.Info("case_admitted",
		"case_id", caseID,
		"file_count", bundle.FileCount,
		"detected_scans", bundle.DetectedScans(),
	)
	return bundle, nil
}

func (uc *AdmitCaseUseCase) storeAndClassify(caseID string, files []ports.UploadFile) (domain.AcceptedBundle, error) {
	scanFiles := map[domain.Modality]string{}
	var uploaded []string
	var fileErrors []string
	stored := 0

	for _, file := range files {
		filename := domain.SanitizeSegment(file.Filename)
		if filename == "" {
			continue
		}
		uploaded = append(uploaded, filename)
		stored++

		if err := uc.store.SaveScan(caseID, filename, file.Body); err != nil {
			return domain.AcceptedBundle{}, fmt.Errorf("store scan %s: %w", filename, err)
		}
		if err := uc.validator.Validate(uc.store.ScanPath(caseID, filename)); err != nil {
			fileErrors = append(fileErrors, fmt.Sprintf("%s: %s", filename, err))
			continue
		}
		if modality, ok := domain.ClassifyScanFilename(filename); ok {
			scanFiles[modality] = filename
		}
	}

	if len(fileErrors) > 0 {
		return domain.AcceptedBundle{}, &domain.ValidationError{
			CaseID:        caseID,
			FileErrors:    fileErrors,
			UploadedFiles: uploaded,
		}
	}

	var missing []string
	for _, required := range domain.RequiredModalities() {
		if _, ok := scanFiles[required]; !ok {
			missing = append(missing, string(required))
		}
	}
	if len(missing) > 0 {
		return domain.AcceptedBundle{}, &domain.ValidationError{
			CaseID:        caseID,
			MissingScans:  missing,
			UploadedFiles: uploaded,
			DetectedScans: detectedScans(scanFiles),
		}
	}

	return domain.AcceptedBundle{
		CaseID:    caseID,
		ScanFiles: scanFiles,
		FileCount: stored,
	}, nil
}

func uploadedNames(files []ports.UploadFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		if name := domain.SanitizeSegment(f.Filename); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func detectedScans(scanFiles map[domain.Modality]string) []string {
	out := make([]string, 0, len(scanFiles))
	for _, m := range domain.AllModalities() {
		if _, ok := scanFiles[m]; ok {
			out = append(out, string(m))
		}
	}
	return out
}
