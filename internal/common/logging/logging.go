// Package logging configures the process-wide zerolog logger once at
// startup, the way each cmd/*/main.go configures its own logger before
// doing anything else.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets zerolog's global level and output writer. In dev mode logs
// are pretty-printed to stderr; otherwise structured JSON, the format a log
// aggregator expects.
func Configure(dev bool, component string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w = os.Stderr
	var logger zerolog.Logger
	if dev {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
			With().Timestamp().Str("component", component).Logger()
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		logger = zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	}

	log.Logger = logger
}
