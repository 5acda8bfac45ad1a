// Package telemetry sends privacy-filtered error reports to Sentry.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

const defaultEnvironment = "production"

var initialized atomic.Bool

// Init configures the Sentry client and routes built errors to it. It does
// nothing and returns false when telemetry is disabled. transport may be
// nil to use the default HTTP transport.
func Init(settings *conf.TelemetrySettings, release string, transport sentry.Transport) (bool, error) {
	if !settings.Enabled {
		errors.SetTelemetryReporter(nil)
		return false, nil
	}
	if settings.SentryDSN == "" {
		return false, errors.Newf("telemetry is enabled but no sentry dsn is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	env := settings.Environment
	if env == "" {
		env = defaultEnvironment
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      env,
		ServerName:       "",
		Release:          conf.AppName + "@" + release,
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)
	GetLogger().Info("error telemetry enabled",
		logger.String("environment", env),
		logger.String("release", release))
	return true, nil
}

// Flush waits up to timeout for queued events. Safe to call when Init was
// never successful.
func Flush(timeout time.Duration) {
	if !initialized.Load() {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("telemetry flush timed out", logger.Duration("timeout", timeout))
	}
}

// applyPrivacyFilters drops everything that could identify the host or the
// user before an event leaves the process.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil
	event.Modules = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// GetLogger returns the telemetry logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
