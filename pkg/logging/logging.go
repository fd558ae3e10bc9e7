// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string    // debug, info, warn, error (default info)
	Format string    // console or json (default console)
	Output io.Writer // default os.Stderr
}

// New creates a logger writing to cfg.Output.
func New(cfg Config) (zerolog.Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
