package entity

import "time"

// AdapterKind selects the wire protocol a provider speaks.
// Raw kind strings from clients are normalized in the llm package; these are
// the canonical values stored on a Provider row.
type AdapterKind string

const (
	KindOpenAICompat AdapterKind = "openai-compat"
	KindAnthropic    AdapterKind = "anthropic"
	KindGemini       AdapterKind = "gemini"
	KindCustom       AdapterKind = "custom"
)

// Provider is an external model API endpoint an operator has registered.
type Provider struct {
	ID             string
	Name           string
	Kind           AdapterKind
	BaseURL        string
	APIKey         string // optional credential
	DefaultModelID string
	CreatedAt      time.Time
	LastCheckedAt  *time.Time // set by the connectivity probe on success
}

// Model is a concrete model served by a Provider, with optional generation
// parameter overrides.
type Model struct {
	ID         string
	ProviderID string
	Label      string // display label
	ModelID    string // vendor model id string, e.g. "gpt-4o"
	Params     ModelParams
	CreatedAt  time.Time
}

// ModelParams maps canonical parameter names to their setting.
// A parameter with Enabled=false (or absent) is omitted from provider requests.
type ModelParams map[string]ParamSetting

// ParamSetting is one generation parameter on a Model.
type ParamSetting struct {
	Enabled bool `json:"enabled"`
	Value   any  `json:"value"`
}

// Enabled returns the value for a parameter iff it is enabled.
func (p ModelParams) Get(name string) (any, bool) {
	s, ok := p[name]
	if !ok || !s.Enabled {
		return nil, false
	}
	return s.Value, true
}
