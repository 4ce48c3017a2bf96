package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Outcome is the last part of a turn event subject.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// TurnEvent announces how a debate turn ended. Subscribers get a
// notification, not the fragment stream.
type TurnEvent struct {
	SessionID      string    `json:"sessionId"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	Role           string    `json:"role"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Outcome        Outcome   `json:"outcome"`
	Fragments      int       `json:"fragments"`
	Characters     int       `json:"characters"`
	Error          string    `json:"error,omitempty"`
	DurationMillis int64     `json:"durationMs"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Publisher delivers turn events.
type Publisher interface {
	PublishTurn(ctx context.Context, event TurnEvent) error
	Close()
}

// Subject returns the subject an event is published on.
func Subject(prefix string, outcome Outcome) string {
	return prefix + "." + string(outcome)
}

// NATSPublisher publishes JSON turn events to NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url. The connection retries in the
// background, so a broker that is down at startup does not block the API.
func NewNATSPublisher(url, token, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("z-arena-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[events] nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) PublishTurn(_ context.Context, event TurnEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}
	subject := Subject(p.prefix, event.Outcome)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishTurn(context.Context, TurnEvent) error { return nil }

func (NoopPublisher) Close() {}
