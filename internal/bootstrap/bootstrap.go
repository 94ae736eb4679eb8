package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/config"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/usecase"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/infrastructure/casestore"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/infrastructure/events"
	natsevents "github.com/m7md-3asm/brainscan-insight-navigator/internal/infrastructure/events/nats"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/infrastructure/nifti"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/infrastructure/pipeline"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/observability/metrics"
)

const serviceName = "brainscan-insight-navigator"

type App struct {
	Config config.Config

	Store  ports.CaseStore
	Events ports.EventPublisher

	AdmitUC      *usecase.AdmitCaseUseCase
	Orchestrator *usecase.JobOrchestrator
	StatusUC     *usecase.CaseStatusUseCase

	ServerMetrics *metrics.HTTPServerMetrics
	HealthCheck   func() error

	closeFn func()
}

func New(_ context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := casestore.New(cfg.UploadRoot, cfg.ResultsRoot)
	if err != nil {
		return nil, fmt.Errorf("init case store: %w", err)
	}

	runner, err := pipeline.NewRunner(cfg.PipelineCommand, cfg.PipelineArgs)
	if err != nil {
		return nil, fmt.Errorf("init pipeline runner: %w", err)
	}

	var publisher ports.EventPublisher = events.NewNoopPublisher()
	closeFn := func() {}
	if cfg.NATSURL != "" {
		natsPublisher, err := natsevents.New(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		publisher = natsPublisher
		closeFn = natsPublisher.Close
	}

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)
	caseMetrics := metrics.NewCaseMetrics(serviceName, serverMetrics.Registry())

	tracker := usecase.NewProgressTracker(store, publisher, logger)
	admitUC := usecase.NewAdmitCaseUseCase(store, nifti.NewValidator(), publisher, logger)
	orchestrator := usecase.NewJobOrchestrator(store, runner, tracker, publisher, logger, caseMetrics).
		WithViewerURLs(cfg.ViewerBaseURL, cfg.ResultsBaseURL)
	statusUC := usecase.NewCaseStatusUseCase(store)

	return &App{
		Config: cfg,

		Store:  store,
		Events: publisher,

		AdmitUC:      admitUC,
		Orchestrator: orchestrator,
		StatusUC:     statusUC,

		ServerMetrics: serverMetrics,
		HealthCheck: func() error {
			for _, root := range []string{cfg.UploadRoot, cfg.ResultsRoot} {
				if _, err := os.Stat(root); err != nil {
					return fmt.Errorf("storage root unavailable: %w", err)
				}
			}
			return nil
		},

		closeFn: closeFn,
	}, nil
}

func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	if a.closeFn != nil {
		a.closeFn()
	}
}
