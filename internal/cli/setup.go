package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/config"
)

// Options are the flags shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
	Scenarios  []string
}

// Load reads the configuration and applies command-line overrides.
func Load(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if len(opts.Scenarios) > 0 {
		cfg.Scenarios = opts.Scenarios
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Open loads the configuration and deploys the relay it describes.
func Open(ctx context.Context, opts Options) (*relay.Relay, *slog.Logger, error) {
	cfg, err := Load(opts)
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(level)

	r, err := relay.New(ctx, cfg, relay.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to deploy relay: %w", err)
	}
	return r, logger, nil
}
