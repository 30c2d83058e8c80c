package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls root logger construction.
type Options struct {
	Level   string
	File    string
	Service string
	Env     string
	Console io.Writer
}

// New builds the root zerolog logger. When File is set, entries are also
// written to a size-rotated file.
func New(opts Options) zerolog.Logger {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	writers := []io.Writer{console}
	if path := strings.TrimSpace(opts.File); path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	var output io.Writer = console
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(output).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()

	if opts.Service != "" {
		logger = logger.With().Str("service", opts.Service).Logger()
	}
	if opts.Env != "" {
		logger = logger.With().Str("env", opts.Env).Logger()
	}

	return logger
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || raw == "" {
		return zerolog.InfoLevel
	}
	return level
}
