// Package notify defines the notification contract between the workflow and
// the delivery system. The workflow only produces (template, target, payload)
// triples; rendering and delivery happen elsewhere.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Template keys understood by the delivery system.
const (
	TemplateCadastroDisponibilized = "cadastro_disponibilized"
	TemplateCadastroDevolved       = "cadastro_devolved"
	TemplateCadastroReopened       = "cadastro_reopened"
	TemplateRevisionDisponibilized = "revision_disponibilized"
	TemplateRevisionDevolved       = "revision_devolved"
	TemplateValidationDevolved     = "validation_devolved"
	TemplateAdjustedMapSubmitted   = "adjusted_map_submitted"
)

// Request is one notification to deliver. TargetSigil addresses the
// recipient unit by its short code.
type Request struct {
	TemplateKey string            `json:"template_key"`
	TargetSigil string            `json:"target_sigil"`
	Payload     map[string]string `json:"payload,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
}

// Dispatcher hands notification requests to the delivery system.
// Best-effort: callers log failures and move on.
type Dispatcher interface {
	Notify(ctx context.Context, req Request) error
}

// NATSDispatcher publishes notification requests as JSON to a single subject.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSDispatcher creates a dispatcher publishing to the given subject,
// typically "compmap.notifications".
func NewNATSDispatcher(conn *nats.Conn, subject string) *NATSDispatcher {
	return &NATSDispatcher{conn: conn, subject: subject}
}

// Notify implements Dispatcher.
func (d *NATSDispatcher) Notify(_ context.Context, req Request) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := d.conn.Publish(d.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// NopDispatcher drops every request. Used when no broker is configured.
type NopDispatcher struct{}

// Notify implements Dispatcher.
func (NopDispatcher) Notify(context.Context, Request) error { return nil }
