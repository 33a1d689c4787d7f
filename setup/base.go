// Package setup wires process-wide concerns that every component shares:
// log level and optional crash reporting. Component construction itself
// lives in cmd/relay.
package setup

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SetupLogging applies the configured log level to the process-wide
// logrus logger. An unparseable level falls back to info with a warning
// rather than refusing to start.
func SetupLogging(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("setup: unknown log level, using info")
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// InitSentry enables crash reporting when dsn is non-empty. Panics in
// per-connection goroutines are recovered and reported by the relay's
// read loop; this only has to install the client.
func InitSentry(dsn string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return fmt.Errorf("setup: sentry init: %w", err)
	}
	return nil
}
