package ports

import "context"

// EventPublisher notifies other services about authentication events.
type EventPublisher interface {
	PublishLogin(ctx context.Context, identityID, address, tokenID string) error
}
