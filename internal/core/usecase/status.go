package usecase

import (
	"context"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

const unknownErrorDetail = "Unknown error"

// CaseStatusUseCase is the polling read model: status plus whichever of
// progress, error detail, or results applies to the current state.
type CaseStatusUseCase struct {
	store ports.CaseStore
}

func NewCaseStatusUseCase(store ports.CaseStore) *CaseStatusUseCase {
	return &CaseStatusUseCase{store: store}
}

func (uc *CaseStatusUseCase) Snapshot(_ context.Context, caseID string) (ports.CaseSnapshot, error) {
	status, err := uc.store.ReadStatus(caseID)
	if err != nil {
		return ports.CaseSnapshot{}, err
	}

	snapshot := ports.CaseSnapshot{CaseID: caseID, Status: status}
	switch status {
	case domain.StatusInitializing, domain.StatusProcessing:
		if record, err := uc.store.ReadProgress(caseID); err == nil {
			snapshot.Progress = &record
		}
	case domain.StatusError:
		detail, err := uc.store.ReadError(caseID)
		if err != nil {
			detail = unknownErrorDetail
		}
		snapshot.Error = detail
	case domain.StatusDone:
		results, err := uc.store.ReadResults(caseID)
		if err != nil {
			results = map[string]string{}
		}
		snapshot.Results = results
	}
	return snapshot, nil
}

func (uc *CaseStatusUseCase) Progress(_ context.Context, caseID string) (domain.ProgressRecord, error) {
	return uc.store.ReadProgress(caseID)
}

func (uc *CaseStatusUseCase) Exists(_ context.Context, caseID string) (bool, error) {
	return uc.store.Exists(caseID)
}

func (uc *CaseStatusUseCase) List(_ context.Context) ([]ports.CaseSnapshot, error) {
	cases, err := uc.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]ports.CaseSnapshot, 0, len(cases))
	for _, c := range cases {
		out = append(out, ports.CaseSnapshot{
			CaseID:    c.ID,
			Status:    c.Status,
			Metadata:  c.Metadata,
			CreatedAt: c.CreatedAt,
		})
	}
	return out, nil
}
