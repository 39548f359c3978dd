package service

import (
	"context"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

// ChatMessage is one turn of a model conversation.
type ChatMessage struct {
	Role    string // system | user | assistant
	Content string
}

// ModelInvoker is the port the run engine uses to talk to language models.
// Implementations resolve the provider's protocol and apply the model's
// enabled parameters.
type ModelInvoker interface {
	// Complete sends the conversation and returns the full response text.
	Complete(ctx context.Context, provider *entity.Provider, model *entity.Model, messages []ChatMessage) (string, error)

	// Stream sends the conversation and forwards text deltas to onToken as
	// they arrive, returning the accumulated text. Providers without a
	// streaming protocol fall back to Complete and emit one token.
	Stream(ctx context.Context, provider *entity.Provider, model *entity.Model, messages []ChatMessage, onToken func(string)) (string, error)
}

// EventPublisher is the port the run engine emits progress events through.
type EventPublisher interface {
	Publish(event entity.RunEvent)
}
