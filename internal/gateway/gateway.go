// Package gateway exposes the assistant over HTTP and chat transports.
package gateway

// Messenger is a chat transport that feeds messages to the assistant.
type Messenger interface {
	// Start blocks while receiving messages.
	Start() error
	Send(chatID string, text string) error
	Stop() error
}

var _ Messenger = (*TelegramGateway)(nil)
