// Package notify is the downstream notification boundary. The engine emits
// moderation events as data records; actual delivery (email, webhooks) is an
// external collaborator consuming them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/model"
)

// Dispatcher receives moderation events. Implementations must be safe for
// concurrent use; a failed dispatch never fails the user-facing operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.ModerationEvent) error
}

// LogDispatcher records events in the structured log only. Default when no
// broker is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a log-only dispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the event
func (d *LogDispatcher) Dispatch(ctx context.Context, event model.ModerationEvent) error {
	d.logger.Info("Moderation event",
		zap.String("event_id", event.EventID),
		zap.String("kind", string(event.Kind)),
		zap.String("thread_id", event.ThreadID),
		zap.String("comment_id", event.CommentID))
	return nil
}

// NatsDispatcher publishes events to a NATS subject for external delivery
// workers
type NatsDispatcher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNatsDispatcher connects to NATS and creates a publishing dispatcher
func NewNatsDispatcher(url, subject string, logger *zap.Logger) (*NatsDispatcher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsDispatcher{conn: conn, subject: subject, logger: logger}, nil
}

// Dispatch publishes the event as JSON
func (d *NatsDispatcher) Dispatch(ctx context.Context, event model.ModerationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", d.subject, event.Kind)
	if err := d.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains the NATS connection
func (d *NatsDispatcher) Close() error {
	d.conn.Close()
	return nil
}
