// Package nats publishes case lifecycle events for push-style consumers
// (dashboards that would rather subscribe than poll). Publishing is advisory:
// the orchestrator never fails a case because an event did not go out.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/ports"
	"github.com/m7md-3asm/brainscan-insight-navigator/internal/infrastructure/resilience"
)

type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
	executor      *resilience.Executor
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func New(url, subjectPrefix string) (*Publisher, error) {
	return NewWithOptions(url, subjectPrefix, Options{})
}

func NewWithOptions(url, subjectPrefix string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("brainscan-insight-navigator"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &Publisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		executor:      resilience.NewExecutor("nats.publish", resilience.DefaultConfig(), classifyNATSError),
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) PublishAdmitted(ctx context.Context, event ports.CaseEvent) error {
	return p.publish(ctx, "admitted", event)
}

func (p *Publisher) PublishProgress(ctx context.Context, event ports.CaseEvent) error {
	return p.publish(ctx, "progress", event)
}

func (p *Publisher) PublishTerminal(ctx context.Context, event ports.CaseEvent) error {
	return p.publish(ctx, "terminal", event)
}

func (p *Publisher) publish(ctx context.Context, kind string, event ports.CaseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode case event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, kind)
	return p.executor.Execute(ctx, "nats.publish."+kind, func(context.Context) error {
		if err := p.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	})
}
