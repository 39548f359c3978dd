package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

// Message is one turn of a provider request.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Request is a protocol-independent completion request. Params carries the
// model's parameter settings; each client projects the enabled ones into its
// wire format.
type Request struct {
	Model    string // vendor model id string
	Messages []Message
	Params   entity.ModelParams
}

// Client abstracts one provider wire protocol.
type Client interface {
	// Complete performs a non-streaming completion and returns the text.
	Complete(ctx context.Context, req *Request) (string, error)
	// Stream performs a streaming completion, invoking onToken for each
	// incremental text delta, and returns the accumulated text.
	Stream(ctx context.Context, req *Request, onToken func(delta string)) (string, error)
}

// ClientConfig holds the per-provider connection settings a client is built
// from. BaseURL arrives already normalized (no trailing slash).
type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// NormalizeKind collapses a raw adapter-kind string to its canonical kind.
// Matching is forgiving: lowercase, non-alphanumerics stripped, with the
// documented aliases.
func NormalizeKind(raw string) (entity.AdapterKind, bool) {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	switch b.String() {
	case "openaicompat", "openai", "openaicompatible", "oai", "compatible":
		return entity.KindOpenAICompat, true
	case "anthropic", "claude":
		return entity.KindAnthropic, true
	case "gemini", "google", "googleai", "googlegenai":
		return entity.KindGemini, true
	case "custom":
		return entity.KindCustom, true
	}
	return "", false
}

// NormalizeBaseURL trims trailing slashes from a provider base URL.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// --- Client factory registry ---
// Protocol clients register themselves via init() in their own package.
// Adding a protocol = implement Client + RegisterFactory("kind", New).

// Factory creates a Client from connection settings.
type Factory func(cfg ClientConfig, logger *zap.Logger) Client

var (
	factoryMu sync.RWMutex
	factories = map[entity.AdapterKind]Factory{}
)

// RegisterFactory registers a client factory for the given canonical kind.
func RegisterFactory(kind entity.AdapterKind, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = factory
}

// NewClient builds the protocol client for a provider row. The "custom" kind
// speaks the OpenAI-compatible protocol against whatever base URL the
// operator configured.
func NewClient(provider *entity.Provider, logger *zap.Logger) (Client, error) {
	kind, ok := NormalizeKind(string(provider.Kind))
	if !ok {
		return nil, fmt.Errorf("unknown adapter kind %q", provider.Kind)
	}
	if kind == entity.KindCustom {
		kind = entity.KindOpenAICompat
	}

	factoryMu.RLock()
	factory, found := factories[kind]
	factoryMu.RUnlock()
	if !found {
		return nil, fmt.Errorf("no client registered for adapter kind %q", kind)
	}

	cfg := ClientConfig{
		BaseURL: NormalizeBaseURL(provider.BaseURL),
		APIKey:  provider.APIKey,
	}
	return factory(cfg, logger), nil
}
