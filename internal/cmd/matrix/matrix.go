// Package matrix parses matrix service flags and launches the service.
package matrix

import (
	"context"
	"flag"

	entrypoint "github.com/openraci/raciboard/internal/platform/cmd"
	server "github.com/openraci/raciboard/internal/services/matrix/app"
)

// Config holds matrix command configuration.
type Config struct {
	Port int `env:"RACIBOARD_MATRIX_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The matrix HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the matrix HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMatrix, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
