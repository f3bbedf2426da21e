// Package logging builds the logrus logger shared by all components.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logger handed to every component.
type Logger = *logrus.Logger

// Entry is a logger carrying fields.
type Entry = *logrus.Entry

// Fields represents structured logging fields.
type Fields = logrus.Fields

// Options controls logger construction.
type Options struct {
	Debug bool
	// JSON switches to the JSON formatter, used in production.
	JSON   bool
	Output io.Writer
}

// New creates a configured logrus logger.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	Configure(logger, opts)
	return logger
}

// Configure applies opts to an existing logger. main uses it once the
// configuration that decides format and level has been loaded.
func Configure(logger *logrus.Logger, opts Options) {
	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
