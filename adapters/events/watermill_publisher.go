package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/baliola/walletgate/ports"
)

// LoginTopic carries successful wallet logins for downstream consumers
// (audit trail, last-seen tracking).
const LoginTopic = "walletgate.login"

// LoginEvent is the payload published on every successful login.
type LoginEvent struct {
	IdentityID string    `json:"identity_id"`
	Address    string    `json:"address"`
	TokenID    string    `json:"token_id"`
	At         time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     LoginTopic,
	}
}

// PublishLogin publishes a login event.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, identityID, address, tokenID string) error {
	event := LoginEvent{
		IdentityID: identityID,
		Address:    address,
		TokenID:    tokenID,
		At:         time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(tokenID, payload)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
