// Package events provides the no-op publisher used when no event broker is
// configured; polling the status API remains the primary contract.
package events

import (
	"context"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
)

type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (*NoopPublisher) PublishAdmitted(context.Context, ports.CaseEvent) error { return nil }
func (*NoopPublisher) PublishProgress(context.Context, ports.CaseEvent) error { return nil }
func (*NoopPublisher) PublishTerminal(context.Context, ports.CaseEvent) error { return nil }
