// Package event publishes domain events for subprocess transitions. Events
// are fire-and-forget: the workflow never depends on their delivery.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Kind identifies the domain event.
type Kind string

const (
	// KindCadastroDisponibilized fires when a unit releases its cadastro.
	KindCadastroDisponibilized Kind = "cadastro.disponibilized"
	// KindCadastroDevolved fires when a cadastro is returned to the unit.
	KindCadastroDevolved Kind = "cadastro.devolved"
	// KindCadastroHomologated fires on cadastro homologation.
	KindCadastroHomologated Kind = "cadastro.homologated"
	// KindRevisionDisponibilized fires when a unit releases a revised
	// cadastro.
	KindRevisionDisponibilized Kind = "revision.disponibilized"
	// KindRevisionCadastroHomologated fires when a revision homologates with
	// impacts requiring map adjustment.
	KindRevisionCadastroHomologated Kind = "revision.cadastro_homologated"
	// KindMapHomologated fires when a unit's map becomes live.
	KindMapHomologated Kind = "map.homologated"
)

// Event is one domain event.
type Event struct {
	Kind         Kind      `json:"kind"`
	SubprocessID string    `json:"subprocess_id"`
	ProcessID    string    `json:"process_id"`
	UnitID       string    `json:"unit_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NATSPublisher publishes events as JSON onto NATS subjects derived from the
// event kind, e.g. "compmap.subprocess.cadastro.disponibilized".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on the given connection. prefix is the
// subject prefix, typically "compmap.subprocess".
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.prefix + "." + string(ev.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
