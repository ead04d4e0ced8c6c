// Package logging builds the process logger from configuration.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"device-hub-server/internal/config"
)

// New returns a logrus logger writing to stdout. Unknown levels fall back to
// info and unknown formats fall back to JSON.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(ParseLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}

func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithComponent tags every entry with the emitting component.
func WithComponent(log logrus.FieldLogger, component string) logrus.FieldLogger {
	return log.WithField("component", component)
}
