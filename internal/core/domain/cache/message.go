package cache

type MessageType string

// MessageSkipWaiting asks a waiting controller to take over without waiting for clients to close.
const MessageSkipWaiting MessageType = "SKIP_WAITING"

// Message is a command object posted to a controller.
type Message struct {
	Type MessageType `json:"type"`
}
