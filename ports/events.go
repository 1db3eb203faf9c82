package ports

import "context"

// EventPublisher notifies other instances about auth lifecycle events.
// Publication is best-effort; the orchestrator never fails a flow on a
// publish error.
type EventPublisher interface {
	PublishRegistered(ctx context.Context, userID, publicKeyID string) error
	PublishLogin(ctx context.Context, userID, sessionID string) error
	PublishLogout(ctx context.Context, userID, sessionID string) error
}
