package connector

import "context"

// Connector is a chat surface the daemon attaches to.
type Connector interface {
	// Name returns the surface type (e.g., "slack").
	Name() string
	// Start begins listening for inbound events. Blocks until the
	// context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Post delivers markdown text to a channel on the surface.
	Post(ctx context.Context, channel, content string) error
}

// Poster is the outbound half of a Connector. Automations depend on
// this rather than the full interface so tests can capture posts.
type Poster interface {
	Post(ctx context.Context, channel, content string) error
}
