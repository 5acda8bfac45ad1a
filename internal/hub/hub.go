// Package hub downloads audio datasets from a Hugging Face compatible hub
// into the local <split>/<class>/<file> layout.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/httpclient"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

var (
	// ErrInvalidRepo is returned for identifiers that are not owner/name
	ErrInvalidRepo = errors.NewStd("dataset identifier must be owner/name")
	// ErrUnauthorized is returned for 401 and 403 responses
	ErrUnauthorized = errors.NewStd("hub refused access, a token may be required")
	// ErrSizeMismatch is returned when a download is shorter or longer than listed
	ErrSizeMismatch = errors.NewStd("downloaded size differs from listed size")
)

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Client talks to the hub API
type Client struct {
	http     *httpclient.Client
	settings conf.HubSettings
	metrics  *metrics.HubMetrics
	recorder metrics.Recorder
	logger   logger.Logger
}

// Option configures a Client
type Option func(*httpclient.Config)

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *httpclient.Config) { c.Transport = rt }
}

// New creates a hub client from settings. m may be nil.
func New(settings conf.HubSettings, m *metrics.HubMetrics, opts ...Option) *Client {
	cfg := httpclient.Config{
		DefaultTimeout:    settings.Timeout,
		UserAgent:         conf.AppName,
		Token:             settings.Token,
		RequestsPerSecond: settings.RequestsPerSecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		http:     httpclient.New(&cfg),
		settings: settings,
		metrics:  m,
		recorder: metrics.NoopRecorder{},
		logger:   GetLogger(),
	}
	if m != nil {
		c.recorder = m
	}

	c.http.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Trace("hub request",
			logger.String("url", req.URL.Redacted()),
			logger.Int("status", status),
			logger.Bool("failed", err != nil))
	})
	return c
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.Close()
}

// ValidateRepo checks a dataset identifier
func ValidateRepo(repo string) error {
	if !repoPattern.MatchString(repo) {
		return errors.New(fmt.Errorf("%w: %q", ErrInvalidRepo, repo)).
			Component("hub").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// treeURL returns the listing URL of path at revision
func (c *Client) treeURL(repo, revision, path string) string {
	u := fmt.Sprintf("%s/api/datasets/%s/tree/%s", strings.TrimRight(c.settings.Endpoint, "/"), repo, url.PathEscape(revision))
	if path != "" {
		u += "/" + escapePath(path)
	}
	return u + "?recursive=true&expand=false"
}

// resolveURL returns the raw download URL of a file
func (c *Client) resolveURL(repo, revision, path string) string {
	return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s",
		strings.TrimRight(c.settings.Endpoint, "/"), repo, url.PathEscape(revision), escapePath(path))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// get issues a GET and converts non-2xx responses into categorized errors.
// The caller closes the body.
func (c *Client) get(ctx context.Context, op, rawURL string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Get(ctx, rawURL)
	if err != nil {
		c.recorder.RecordError(op, string(errors.CategoryNetwork))
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryCancellation
		}
		return nil, errors.New(err).
			Component("hub").
			Category(category).
			NetworkContext(rawURL, c.settings.Timeout).
			Context("operation", op).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		c.recorder.RecordOperation(op, metrics.StatusError)
		statusErr := fmt.Errorf("unexpected status %s", resp.Status)
		category := errors.CategoryNetwork
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			statusErr = fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
		case http.StatusNotFound:
			category = errors.CategoryNotFound
		}
		return nil, errors.New(statusErr).
			Component("hub").
			Category(category).
			NetworkContext(rawURL, c.settings.Timeout).
			Context("operation", op).
			Context("status_code", resp.StatusCode).
			Build()
	}

	c.recorder.RecordOperation(op, metrics.StatusSuccess)
	c.recorder.RecordDuration(op, time.Since(start).Seconds())
	return resp, nil
}

// GetLogger returns the hub logger
func GetLogger() logger.Logger {
	return logger.Global().Module("hub")
}
