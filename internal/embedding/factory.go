package embedding

import "fmt"

// Config is the subset of operator configuration needed to construct a
// Provider; unused fields are ignored by providers that don't need them.
type Config struct {
	Kind       string // openai | voyage | ollama | mock
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
}

// New constructs a Provider from an enumerated kind, per the spec's
// "dynamic provider selection at construction" pattern — no global
// singleton survives past this call.
func New(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case "", "mock":
		return NewMock(cfg.Dimensions), nil
	case "openai":
		return NewOpenAILike(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	case "voyage":
		return NewVoyageLike(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	case "ollama":
		return NewOllamaLike(cfg.Endpoint, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider kind %q", cfg.Kind)
	}
}
