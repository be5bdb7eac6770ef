package internal

import (
	"log/slog"

	"github.com/starford/monologue/internal/targets"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	targets []targets.Target
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithTargets replaces the targets built from configuration.
func WithTargets(ts ...targets.Target) Option {
	return func(a *application) {
		a.targets = ts
	}
}
