package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	"github.com/evalgate/evalgate/internal/domain/service"
)

// Invoker adapts the protocol client registry to the engine's ModelInvoker
// port. Clients are built per call from the provider row, so credential or
// base URL edits take effect immediately.
type Invoker struct {
	logger *zap.Logger
}

// NewInvoker creates an Invoker.
func NewInvoker(logger *zap.Logger) *Invoker {
	return &Invoker{logger: logger}
}

var _ service.ModelInvoker = (*Invoker)(nil)

// Complete implements service.ModelInvoker.
func (i *Invoker) Complete(ctx context.Context, provider *entity.Provider, model *entity.Model, messages []service.ChatMessage) (string, error) {
	client, err := NewClient(provider, i.logger)
	if err != nil {
		return "", err
	}
	return client.Complete(ctx, i.buildRequest(model, messages))
}

// Stream implements service.ModelInvoker.
func (i *Invoker) Stream(ctx context.Context, provider *entity.Provider, model *entity.Model, messages []service.ChatMessage, onToken func(string)) (string, error) {
	client, err := NewClient(provider, i.logger)
	if err != nil {
		return "", err
	}
	return client.Stream(ctx, i.buildRequest(model, messages), onToken)
}

func (i *Invoker) buildRequest(model *entity.Model, messages []service.ChatMessage) *Request {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}
	return &Request{
		Model:    model.ModelID,
		Messages: msgs,
		Params:   model.Params,
	}
}
