package logging

import (
	"testing"

	"github.com/rs/zerolog/log"
)

func TestConfigureSetsComponentField(t *testing.T) {
	Configure(true, "relayd")
	// Configure swaps the global logger; a smoke call to confirm it doesn't
	// panic is all this package's own tests can meaningfully assert without
	// capturing stderr.
	log.Info().Msg("logging configured")
}
