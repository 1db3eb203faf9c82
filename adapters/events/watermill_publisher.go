package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/rangda/ports"
)

const (
	TypeRegistered = "user.registered"
	TypeLogin      = "session.created"
	TypeLogout     = "session.revoked"
)

// AuthEvent is the payload published for every auth lifecycle event.
type AuthEvent struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	PublicKeyID string    `json:"public_key_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	At          time.Time `json:"at"`
}

// WatermillPublisher implements ports.EventPublisher using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     "rangda.auth",
	}
}

func (p *WatermillPublisher) PublishRegistered(ctx context.Context, userID, publicKeyID string) error {
	return p.publish(AuthEvent{Type: TypeRegistered, UserID: userID, PublicKeyID: publicKeyID})
}

func (p *WatermillPublisher) PublishLogin(ctx context.Context, userID, sessionID string) error {
	return p.publish(AuthEvent{Type: TypeLogin, UserID: userID, SessionID: sessionID})
}

func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID, sessionID string) error {
	return p.publish(AuthEvent{Type: TypeLogout, UserID: userID, SessionID: sessionID})
}

func (p *WatermillPublisher) publish(event AuthEvent) error {
	event.At = time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
