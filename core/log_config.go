package core

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// init initializes the logging configuration for the application based on the DYNBENCH_LOG environment variable.
// It sets the global logging level to Disabled, Debug, or Info based on the value of DYNBENCH_LOG.
func init() {
	zerolog.SetGlobalLevel(LogLevel(os.Getenv("DYNBENCH_LOG")))
}

// LogLevel maps a DYNBENCH_LOG value to a zerolog level.
// "off" or "0" disables logging, "full" enables debug output, anything else means info.
func LogLevel(value string) zerolog.Level {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "off", "0":
		return zerolog.Disabled
	case "full":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
