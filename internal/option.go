package internal

import "github.com/starford/laguz/internal/provider"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	embedder  provider.Embedder
	describer provider.VisionDescriber
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithProviders overrides the AI providers, primarily for tests and
// offline runs.
func WithProviders(embedder provider.Embedder, describer provider.VisionDescriber) Option {
	return func(a *application) {
		a.embedder = embedder
		a.describer = describer
	}
}
