package httpclient

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client := New(nil)
		require.NotNil(t, client)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
		assert.Nil(t, client.limiter)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		client := New(&Config{RequestsPerSecond: 2})
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.NotEmpty(t, client.userAgent)
		assert.NotNil(t, client.limiter)
	})
}

func TestDo_HeadersAndBody(t *testing.T) {
	var gotUA, gotAuth string
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("audio bytes"))
	})

	client := newClient(t, &Config{UserAgent: "bioacoustics-test/1.0", Token: "hf_secret"})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer drain(t, resp)

	// the default timeout context must stay alive until the body is read
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(body))
	assert.Equal(t, "bioacoustics-test/1.0", gotUA)
	assert.Equal(t, "Bearer hf_secret", gotAuth)
}

func TestDo_NoTokenNoAuthorization(t *testing.T) {
	var gotAuth string
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	})

	resp, err := newClient(t, nil).Get(t.Context(), server.URL)
	require.NoError(t, err)
	drain(t, resp)
	assert.Empty(t, gotAuth)
}

func TestDo_ContextCancellation(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp, err := newClient(t, nil).Get(ctx, server.URL)
	defer drain(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_DefaultTimeout(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	client := newClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	resp, err := client.Get(t.Context(), server.URL)
	defer drain(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_RateLimit(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {})
	client := newClient(t, &Config{RequestsPerSecond: 20})

	start := time.Now()
	for range 3 {
		resp, err := client.Get(t.Context(), server.URL)
		require.NoError(t, err)
		drain(t, resp)
	}
	// burst of one: the 2nd and 3rd requests wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDo_Hooks(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newClient(t, nil)

	var beforeCalled bool
	var status int
	client.SetBeforeRequestHook(func(r *http.Request) {
		beforeCalled = true
		assert.Equal(t, server.URL, r.URL.String())
	})
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		assert.NoError(t, err)
		status = resp.StatusCode
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer drain(t, resp)

	assert.True(t, beforeCalled)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDo_NilRequest(t *testing.T) {
	_, err := New(nil).Do(t.Context(), nil)
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	client := New(nil)
	client.Close()
	client.Close()
}
