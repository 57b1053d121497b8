package obs

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogEnv names the environment variable read by ConfigureFromEnv.
const LogEnv = "QUICKHNSW_LOG"

// ConfigureFromEnv sets the global zerolog level from QUICKHNSW_LOG.
// "off" or "0" disables logging, "debug" or "full" enables debug output,
// "warn" limits output to warnings. Anything else selects info.
func ConfigureFromEnv() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LogEnv)))
}

// ParseLevel maps a level name to a zerolog level
func ParseLevel(s string) zerolog.Level {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "off", "0", "disabled":
		return zerolog.Disabled
	case "debug", "full":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a timestamped logger writing to w.
// Terminals get console formatting.
func NewLogger(w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
