// Package connector defines the interface for chat platforms where teams
// post their standup updates (Telegram, Slack).
package connector

import "context"

// Connector is a chat platform integration.
type Connector interface {
	// Name returns the connector type (e.g. "telegram", "slack").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is
	// cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// InboundMessage is a standup update received from a chat platform.
type InboundMessage struct {
	Channel    string // Connector name (e.g. "telegram")
	SenderID   string // Platform-specific sender identifier
	SenderName string // Human-readable name, used for speaker attribution
	ChatID     string // Platform-specific chat identifier
	Content    string // Message text (possibly transcribed from voice)
}

// InboundHandler processes a standup message and returns the reply text to
// post back to the chat. An empty reply means stay silent.
type InboundHandler func(ctx context.Context, msg InboundMessage) (string, error)
