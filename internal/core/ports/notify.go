package ports

import "context"

// Notifier delivers an event to the configured outbound channels.
// Delivery is best-effort; failures are logged, never surfaced.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}

// ServiceController queries and controls OS services on the node.
type ServiceController interface {
	IsActive(ctx context.Context, name string) (bool, error)
	Run(ctx context.Context, name, action string) error
}
