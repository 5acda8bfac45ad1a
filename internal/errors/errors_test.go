package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureReporter struct {
	mu   sync.Mutex
	errs []*EnhancedError
}

func (c *captureReporter) ReportError(ee *EnhancedError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, ee)
	ee.MarkReported()
}

func (c *captureReporter) IsEnabled() bool { return true }

func TestBuildDefaults(t *testing.T) {
	ee := New(fmt.Errorf("boom")).Build()

	if ee.Error() != "boom" {
		t.Errorf("expected message 'boom', got %q", ee.Error())
	}
	if ee.GetComponent() != ComponentUnknown {
		t.Errorf("expected component %q, got %q", ComponentUnknown, ee.GetComponent())
	}
	if ee.Category != CategoryGeneric {
		t.Errorf("expected category generic, got %q", ee.Category)
	}
}

func TestBuilderContext(t *testing.T) {
	ee := Newf("cannot open %s", "x.wav").
		Component("myaudio").
		Category(CategoryFileIO).
		Priority("bogus").
		FileContext("/data/raw/wolf/x.wav", 2048).
		NetworkContext("https://huggingface.co/api/datasets/a/b?token=abc", 5*time.Second).
		Timing("decode", 1500*time.Millisecond).
		Build()

	ctx := ee.GetContext()
	checks := map[string]any{
		"file_name":          "x.wav",
		"file_extension":     "wav",
		"file_size_category": "small",
		"url":                "https://huggingface.co/api/datasets/a/b",
		"timeout_seconds":    5.0,
		"operation":          "decode",
		"duration_ms":        int64(1500),
	}
	for k, want := range checks {
		if ctx[k] != want {
			t.Errorf("context[%s] = %v, want %v", k, ctx[k], want)
		}
	}
	if ee.Priority != PriorityMedium {
		t.Errorf("invalid priority should fall back to medium, got %q", ee.Priority)
	}

	ctx["file_name"] = "mutated"
	if ee.GetContext()["file_name"] != "x.wav" {
		t.Error("GetContext must return a copy")
	}
}

func TestCategoryMatching(t *testing.T) {
	base := fmt.Errorf("disk gone")
	inner := New(base).Category(CategoryFileIO).Build()
	outer := New(fmt.Errorf("preprocess: %w", inner)).Component("preprocess").Build()

	if outer.Category != CategoryFileIO {
		t.Errorf("wrapping should inherit category, got %q", outer.Category)
	}
	if !IsCategory(outer, CategoryFileIO) {
		t.Error("IsCategory should match")
	}
	if !Is(outer, base) {
		t.Error("Is should find the root error")
	}
	if !Is(inner, &EnhancedError{Category: CategoryFileIO}) {
		t.Error("EnhancedErrors with the same category should match")
	}
	if IsNotFound(outer) {
		t.Error("file-io error is not a not-found error")
	}
}

func TestTelemetryReporterReceivesErrors(t *testing.T) {
	rep := &captureReporter{}
	SetTelemetryReporter(rep)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("hub unreachable")).Component("hub").Category(CategoryNetwork).Build()

	if len(rep.errs) != 1 || rep.errs[0] != ee {
		t.Fatalf("expected one reported error, got %d", len(rep.errs))
	}
	if !ee.IsReported() {
		t.Error("error should be marked reported")
	}

	SetTelemetryReporter(nil)
	New(fmt.Errorf("quiet")).Build()
	if len(rep.errs) != 1 {
		t.Error("no reports expected after disabling telemetry")
	}
}

func TestBasicURLScrub(t *testing.T) {
	tests := []struct {
		in      string
		leak    string
		contain string
	}{
		{"GET https://huggingface.co/api/x?token=abc failed", "abc", "?[REDACTED]"},
		{"auth failed: Bearer hf_abcdefghijklmnopqrstu", "hf_abc", "Bearer [REDACTED]"},
		{"dsn mysql://root:secret@db:3306", "secret", "://[REDACTED]@"},
		{"using api_key=12345", "12345", "api_key=[REDACTED]"},
	}
	for _, tt := range tests {
		got := basicURLScrub(tt.in)
		if strings.Contains(got, tt.leak) {
			t.Errorf("scrub(%q) leaked %q: %q", tt.in, tt.leak, got)
		}
		if !strings.Contains(got, tt.contain) {
			t.Errorf("scrub(%q) = %q, want it to contain %q", tt.in, got, tt.contain)
		}
	}
}

func TestErrorTitle(t *testing.T) {
	ee := New(fmt.Errorf("x")).Component("preprocess").Category(CategoryAudio).Context("operation", "resample_clip").Build()
	if got := errorTitle(ee); got != "Preprocess Audio Processing Resample Clip" {
		t.Errorf("unexpected title %q", got)
	}
}
