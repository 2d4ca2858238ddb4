package cli

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/familycare/checkin-dispatch/internal/app"
	"github.com/familycare/checkin-dispatch/internal/config"
)

// openApp loads configuration from the environment and connects to the
// stores. Logs go to stderr so stdout stays parseable.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
