package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TelemetryReporter receives every built error while reporting is active
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu         sync.RWMutex
	telemetryReporter  TelemetryReporter
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter installs the global reporter. Pass nil to disable reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := telemetryReporter
	reporterMu.RUnlock()

	if reporter != nil && reporter.IsEnabled() && !ee.IsReported() {
		reporter.ReportError(ee)
	}
}

// SentryReporter sends enhanced errors to Sentry with scrubbed messages
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a reporter; sentry.Init must have been called.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError captures ee as a Sentry event grouped by component and category.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := basicURLScrub(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := errorTitle(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = basicURLScrub(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = sentryLevel(ee.Category)
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

var titleCaser = cases.Title(language.English)

// errorTitle builds "Preprocess Audio Processing Resample" style titles.
func errorTitle(ee *EnhancedError) string {
	var parts []string
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, titleCaser.String(c))
	}
	parts = append(parts, titleCaser.String(strings.ReplaceAll(string(ee.Category), "-", " ")))
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		parts = append(parts, titleCaser.String(strings.ReplaceAll(op, "_", " ")))
	}
	return strings.Join(parts, " ")
}

func sentryLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryFileIO, CategoryPlayback:
		return sentry.LevelWarning
	case CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	urlQueryRegex  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	bearerRegex    = regexp.MustCompile(`(?i)bearer\s+\S+`)
	tokenRegex     = regexp.MustCompile(`(?i)(token|api[_-]?key|password)[=:]\S+`)
	hfTokenRegex   = regexp.MustCompile(`hf_[A-Za-z0-9]{16,}`)
	userCredsRegex = regexp.MustCompile(`://[^/@\s]+:[^/@\s]+@`)
)

// basicURLScrub strips query strings, credentials and access tokens from messages.
func basicURLScrub(message string) string {
	s := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	s = userCredsRegex.ReplaceAllString(s, "://[REDACTED]@")
	s = bearerRegex.ReplaceAllString(s, "Bearer [REDACTED]")
	s = tokenRegex.ReplaceAllString(s, "$1=[REDACTED]")
	s = hfTokenRegex.ReplaceAllString(s, "[REDACTED]")
	return s
}
