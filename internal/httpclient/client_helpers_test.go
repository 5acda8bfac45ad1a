package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newClient builds a Client that is closed with the test. A nil cfg uses
// DefaultConfig.
func newClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	if cfg == nil {
		def := DefaultConfig()
		cfg = &def
	}
	client := New(cfg)
	t.Cleanup(client.Close)
	return client
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// drain consumes and closes resp. It accepts a nil response.
func drain(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		t.Logf("closing body: %v", err)
	}
}
