package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
)

// NATSPublisher publishes events on <subject>.<type>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("neuroflow"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEvents, "failed to connect to NATS").
			WithContext("url", url).
			Retryable().Build()
	}
	logger.Info("NATS event publisher connected", logfields.URL(url), slog.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the NATS subject an event is published on.
func (p *NATSPublisher) Subject(t Type) string { return p.subject + "." + string(t) }

// Publish sends the event and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryEvents, "failed to marshal event").Build()
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryEvents, "failed to publish event").
			WithContext("type", string(event.Type)).Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryEvents, "failed to flush event").
			WithContext("type", string(event.Type)).Build()
	}
	p.logger.Debug("Published event", slog.String("type", string(event.Type)), logfields.RunID(event.RunID))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return ferrors.WrapError(err, ferrors.CategoryEvents, "failed to drain NATS connection").Build()
	}
	return nil
}
