package domain

import "context"

// Chat roles understood by every generation provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Reply is a complete chat response.
type Reply struct {
	Content string
	Model   string
}

// StreamChunk is one streamed piece of a reply. Content is incremental.
type StreamChunk struct {
	Content string
	Done    bool
}

// Generator is the chat-completion contract implemented by provider adapters.
type Generator interface {
	Chat(ctx context.Context, messages []Message) (Reply, error)
	// ChatStream delivers chunks to fn in order. A non-nil error from fn stops the stream.
	ChatStream(ctx context.Context, messages []Message, fn func(StreamChunk) error) error
}
