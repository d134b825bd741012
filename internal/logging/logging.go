// Package logging configures logrus output and optional Sentry reporting.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mail-autoreply/internal/model"
)

// Setup configures the standard logrus logger. In TUI mode records go to
// cfg.File as JSON so they do not draw over the dashboard; otherwise they
// go to stderr as text. The returned cleanup flushes Sentry and closes the
// log file.
func Setup(cfg model.LogConfig, sc model.SentryConfig, tui bool) (func(), error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(level)

	var closer io.Closer
	if tui && cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logrus.SetOutput(f)
		logrus.SetFormatter(&logrus.JSONFormatter{})
		closer = f
	} else {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	dsn := sc.DSN
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	sentryOn := false
	if dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: sc.Environment,
		})
		if err != nil {
			logrus.WithError(err).Warn("Sentry disabled")
		} else {
			sentryOn = true
		}
	}

	return func() {
		if sentryOn {
			sentry.Flush(2 * time.Second)
		}
		if closer != nil {
			closer.Close()
		}
	}, nil
}

// LogError logs err with its context and reports it to Sentry.
func LogError(errorType string, err error, context logrus.Fields) {
	log := logrus.WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})
	for k, v := range context {
		log = log.WithField(k, v)
	}
	log.Error("Error occurred")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// LogEvent logs an event and leaves a Sentry breadcrumb.
func LogEvent(eventType string, data logrus.Fields) {
	log := logrus.WithField("event_type", eventType)
	for k, v := range data {
		log = log.WithField(k, v)
	}
	log.Info("Event occurred")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "info",
		Category:  eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// LogWarning logs a recoverable failure and leaves a Sentry breadcrumb
// without capturing an event.
func LogWarning(errorType string, err error, context logrus.Fields) {
	log := logrus.WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})
	for k, v := range context {
		log = log.WithField(k, v)
	}
	log.Warn("Recoverable error")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "error",
		Level:     sentry.LevelWarning,
		Category:  errorType,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}
