package logging

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const (
	FieldChain     = "chain"
	FieldBlock     = "block_number"
	FieldModule    = "module"
	FieldIntent    = "intent_id"
	FieldAuction   = "auction_id"
	FieldDirection = "direction"
)

func New(writer io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	if !jsonOutput {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger()
}

// NewTesting creates a logger that writes to t.Log.
func NewTesting(t testing.TB) zerolog.Logger {
	return New(zerolog.NewTestWriter(t), zerolog.DebugLevel, false)
}

// ParseLevel maps a CLI flag value to a zerolog level. Unknown values fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
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
