package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
)

// mockTransport captures events instead of sending them
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func TestInitDisabled(t *testing.T) {
	ok, err := Init(&conf.TelemetrySettings{}, "dev", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitRequiresDSN(t *testing.T) {
	_, err := Init(&conf.TelemetrySettings{Enabled: true}, "dev", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestErrorsAreReportedScrubbed(t *testing.T) {
	transport := &mockTransport{}
	ok, err := Init(&conf.TelemetrySettings{
		Enabled:   true,
		SentryDSN: "https://public@sentry.example.com/1",
	}, "1.0.0", transport)
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	_ = errors.Newf("fetch https://hub.example.com/file?token=abc failed").
		Component("hub").
		Category(errors.CategoryNetwork).
		Context("operation", "download").
		Build()
	Flush(time.Second)

	events := transport.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.NotContains(t, ev.Message, "abc")
	assert.Equal(t, "hub", ev.Tags["component"])
	assert.Equal(t, "network", ev.Tags["category"])
	assert.Equal(t, sentry.LevelWarning, ev.Level)
	assert.Empty(t, ev.ServerName)
	assert.Equal(t, "bioacoustics@1.0.0", ev.Release)
}

func TestApplyPrivacyFilters(t *testing.T) {
	ev := &sentry.Event{
		ServerName: "lab-host",
		User:       sentry.User{ID: "42", Email: "x@example.com"},
		Contexts:   map[string]sentry.Context{"os": {"name": "linux"}, "trace": {}},
		Extra:      map[string]any{"component": "hub", "path": "/home/x"},
		Tags:       map[string]string{"hostname": "lab-host", "category": "network"},
	}
	ev = applyPrivacyFilters(ev)

	assert.Empty(t, ev.ServerName)
	assert.Equal(t, sentry.User{}, ev.User)
	assert.NotContains(t, ev.Contexts, "os")
	assert.Contains(t, ev.Contexts, "trace")
	assert.Equal(t, map[string]any{"component": "hub"}, ev.Extra)
	assert.Equal(t, map[string]string{"category": "network"}, ev.Tags)
}
