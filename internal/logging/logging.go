// Package logging builds the root zerolog logger.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/config"
)

// New returns a logger writing to w at the configured level. Pretty output
// uses zerolog's console writer; otherwise every line is one JSON object.
func New(conf config.LoggerConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logger level: %w", err)
	}
	if conf.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", "calnotify").Logger(), nil
}
