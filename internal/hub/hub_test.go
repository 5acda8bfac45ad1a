package hub

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

const (
	testEndpoint = "https://hub.test"
	treeURL      = testEndpoint + "/api/datasets/wolves/howls/tree/main"
	resolveBase  = testEndpoint + "/datasets/wolves/howls/resolve/main/"
)

func testSettings() conf.HubSettings {
	return conf.HubSettings{
		Endpoint:     testEndpoint,
		Revision:     "main",
		LabelColumn:  "label",
		SplitAliases: map[string]string{"validation": conf.SplitTest},
		Extensions:   []string{".wav", ".flac"},
		Timeout:      5 * time.Second,
	}
}

func newMockClient(t *testing.T, settings conf.HubSettings, m *metrics.HubMetrics) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	c := New(settings, m, WithTransport(mock))
	t.Cleanup(c.Close)
	return c, mock
}

const treeJSON = `[
  {"type": "directory", "path": "train", "size": 0},
  {"type": "file", "path": "README.md", "size": 10},
  {"type": "file", "path": "orphan.wav", "size": 4},
  {"type": "file", "path": "train/wolf_a/1.wav", "size": 4},
  {"type": "file", "path": "train/wolf_a/2.wav", "size": 4},
  {"type": "file", "path": "validation/wolf_b/3.WAV", "size": 99, "lfs": {"oid": "abc", "size": 4}},
  {"type": "file", "path": "test/metadata.csv", "size": 30},
  {"type": "file", "path": "test/x.wav", "size": 4}
]`

func TestDownload(t *testing.T) {
	m, err := metrics.NewHubMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c, mock := newMockClient(t, testSettings(), m)

	mock.RegisterResponder(http.MethodGet, treeURL, httpmock.NewStringResponder(http.StatusOK, treeJSON))
	mock.RegisterResponder(http.MethodGet, resolveBase+"test/metadata.csv",
		httpmock.NewStringResponder(http.StatusOK, "\ufefffile_name,label\nx.wav,wolf_a\n"))
	for _, p := range []string{"train/wolf_a/1.wav", "validation/wolf_b/3.WAV", "test/x.wav"} {
		mock.RegisterResponder(http.MethodGet, resolveBase+p, httpmock.NewStringResponder(http.StatusOK, "RIFF"))
	}

	out := t.TempDir()
	// already present with the listed size
	existing := filepath.Join(out, "train", "wolf_a", "2.wav")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("RIFF"), 0o600))

	var progress []int
	res, err := c.Download(context.Background(), DownloadOptions{
		Repo:     "wolves/howls",
		OutDir:   out,
		Progress: func(done, _ int) { progress = append(progress, done) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Downloaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Unlabeled)
	assert.Equal(t, int64(12), res.Bytes)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)

	for _, p := range []string{
		"train/wolf_a/1.wav",
		"test/wolf_b/3.WAV",
		"test/wolf_a/x.wav",
	} {
		data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(p)))
		require.NoError(t, err, p)
		assert.Equal(t, "RIFF", string(data))
	}

	assert.Zero(t, mock.GetCallCountInfo()["GET "+resolveBase+"train/wolf_a/2.wav"])
	expected := `
# HELP bioacoustics_hub_downloaded_bytes_total Bytes written by the downloader
# TYPE bioacoustics_hub_downloaded_bytes_total counter
bioacoustics_hub_downloaded_bytes_total 12
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "bioacoustics_hub_downloaded_bytes_total"))
}

func TestDownloadSendsToken(t *testing.T) {
	settings := testSettings()
	settings.Token = "hf_abc"
	c, mock := newMockClient(t, settings, nil)

	mock.RegisterResponder(http.MethodGet, treeURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer hf_abc" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "[]"), nil
	})

	files, err := c.ListFiles(context.Background(), "wolves/howls", "main", "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListFilesFollowsPagination(t *testing.T) {
	c, mock := newMockClient(t, testSettings(), nil)

	page2 := testEndpoint + "/api/datasets/wolves/howls/tree/main/data"
	mock.RegisterResponder(http.MethodGet, treeURL+"/data", func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("cursor") == "2" {
			return httpmock.NewStringResponse(http.StatusOK, `[{"type":"file","path":"data/train/b/2.wav","size":2}]`), nil
		}
		resp := httpmock.NewStringResponse(http.StatusOK, `[{"type":"file","path":"data/train/a/1.wav","size":1}]`)
		resp.Header.Set("Link", `<`+page2+`?recursive=true&cursor=2>; rel="next"`)
		return resp, nil
	})

	files, err := c.ListFiles(context.Background(), "wolves/howls", "main", "data")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "data/train/b/2.wav", files[1].Path)

	targets, unlabeled := c.plan(files, nil, "data", "/out")
	assert.Zero(t, unlabeled)
	require.Len(t, targets, 2)
	assert.Equal(t, filepath.Join("/out", "train", "a", "1.wav"), targets[0].LocalPath)
}

func TestHTTPErrorsAreCategorized(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category errors.ErrorCategory
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, errors.CategoryNetwork, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, errors.CategoryNetwork, ErrUnauthorized},
		{"not found", http.StatusNotFound, errors.CategoryNotFound, nil},
		{"server error", http.StatusBadGateway, errors.CategoryNetwork, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newMockClient(t, testSettings(), nil)
			mock.RegisterResponder(http.MethodGet, treeURL, httpmock.NewStringResponder(tt.status, "nope"))

			_, err := c.ListFiles(context.Background(), "wolves/howls", "main", "")
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestDownloadSizeMismatch(t *testing.T) {
	c, mock := newMockClient(t, testSettings(), nil)
	mock.RegisterResponder(http.MethodGet, treeURL,
		httpmock.NewStringResponder(http.StatusOK, `[{"type":"file","path":"train/a/1.wav","size":10}]`))
	mock.RegisterResponder(http.MethodGet, resolveBase+"train/a/1.wav", httpmock.NewStringResponder(http.StatusOK, "short"))

	out := t.TempDir()
	_, err := c.Download(context.Background(), DownloadOptions{Repo: "wolves/howls", OutDir: out})
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.NoFileExists(t, filepath.Join(out, "train", "a", "1.wav"))
}

func TestDownloadNothingLabelled(t *testing.T) {
	c, mock := newMockClient(t, testSettings(), nil)
	mock.RegisterResponder(http.MethodGet, treeURL,
		httpmock.NewStringResponder(http.StatusOK, `[{"type":"file","path":"loose.wav","size":1}]`))

	_, err := c.Download(context.Background(), DownloadOptions{Repo: "wolves/howls", OutDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestValidateRepo(t *testing.T) {
	assert.NoError(t, ValidateRepo("wolves/howls"))
	assert.NoError(t, ValidateRepo("org-1/data.set_v2"))
	for _, bad := range []string{"", "wolves", "a/b/c", "../etc", "wolves/"} {
		assert.ErrorIs(t, ValidateRepo(bad), ErrInvalidRepo, bad)
	}
}

func TestParseMetadata(t *testing.T) {
	rows, err := parseMetadata(strings.NewReader("file_name,species,label\n a/1.wav ,x, wolf \n2.wav,y,\n"), "label")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a/1.wav": "wolf"}, rows)

	_, err = parseMetadata(strings.NewReader("name,label\n1.wav,wolf\n"), "label")
	require.Error(t, err)

	rows, err = parseMetadata(strings.NewReader("file_name,individual\n1.wav,howler\n"), "individual")
	require.NoError(t, err)
	assert.Equal(t, "howler", rows["1.wav"])
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "canis_lupus", safeName("canis/lupus"))
	assert.Equal(t, "_", safeName(".."))
	assert.Equal(t, "wolf", safeName(" wolf "))
}
