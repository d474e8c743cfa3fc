package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	LevelEnv  = "DOCSUM_LOG_LEVEL"
	FormatEnv = "DOCSUM_LOG_FORMAT"
)

// Init initializes the global logger with configuration from environment variables.
// DOCSUM_LOG_LEVEL controls the log level: debug, info, warn, error (default: info).
// DOCSUM_LOG_FORMAT selects json or console output. Inside Lambda the default is
// JSON on stdout so CloudWatch can index fields; elsewhere it is console on stderr.
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnv)))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	format := strings.ToLower(os.Getenv(FormatEnv))
	if format == "" {
		format = "console"
		if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			format = "json"
		}
	}
	if format == "json" {
		SetOutput(os.Stdout, false)
		return
	}
	SetOutput(os.Stderr, true)
}

// SetOutput points the global logger at w, optionally through a ConsoleWriter.
func SetOutput(w io.Writer, console bool) {
	if console {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
