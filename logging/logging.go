// Package logging builds the zerolog loggers used by every bqs component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the level and the format of a logger.
type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string
	// Format is "json" or "console". Empty means console.
	Format string
	// Output defaults to standard error.
	Output io.Writer
}

// ParseLevel converts a level name to a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", name, err)
	}

	return lvl, nil
}

// New creates a logger that carries a timestamp and the component name
// "bqs".
func New(opts Options) (zerolog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q is not supported",
			opts.Format)
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("component", "bqs").
		Logger(), nil
}

// SetGlobalLevel changes the level of every logger at runtime.
func SetGlobalLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(lvl)

	return nil
}
