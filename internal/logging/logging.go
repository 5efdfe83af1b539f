// Package logging configures the global zerolog logger: human-readable
// console output when attached to a terminal, plus an optional rotating JSON
// file sink.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init wires the global logger. It runs before config.Load, so it reads .env
// itself for LOG_FILE and LOG_LEVEL (Load never overrides variables already
// set in the environment).
func Init(verbose bool) {
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	var sink io.Writer = console
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    32, // megabytes
			MaxBackups: 8,
			MaxAge:     28, // days
			Compress:   true,
		}
		sink = zerolog.MultiLevelWriter(console, rotating)
	}

	log.Logger = zerolog.New(sink).With().Timestamp().Logger()
}
