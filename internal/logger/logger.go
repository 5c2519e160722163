// internal/logger/logger.go
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus so the rest of the codebase doesn't import it directly.
type Logger struct {
	*logrus.Logger
}

// NewLogger returns a logger writing human-readable lines to stdout.
// Log level can be raised via LOG_LEVEL (debug, info, warn, error).
func NewLogger() *Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{log}
}
