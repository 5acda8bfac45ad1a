package hub

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/antonholmquist/jason"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// RemoteFile is a file listed in a dataset repository
type RemoteFile struct {
	Path string // relative to the repository root
	Size int64  // LFS size when the file is stored in LFS
}

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ListFiles lists every file under prefix, following pagination links.
func (c *Client) ListFiles(ctx context.Context, repo, revision, prefix string) ([]RemoteFile, error) {
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}

	var files []RemoteFile
	next := c.treeURL(repo, revision, prefix)
	for page := 1; next != ""; page++ {
		resp, err := c.get(ctx, metrics.OpListFiles, next)
		if err != nil {
			return nil, err
		}
		batch, err := parseTree(resp)
		resp.Body.Close()
		if err != nil {
			return nil, errors.New(err).
				Component("hub").
				Category(errors.CategoryNetwork).
				Context("operation", "parse-tree").
				Context("page", page).
				Build()
		}
		files = append(files, batch...)

		next = ""
		if m := nextLinkPattern.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
			next = m[1]
		}
	}

	c.logger.Debug("listed dataset files",
		logger.String("repo", repo),
		logger.String("revision", revision),
		logger.Int("files", len(files)))
	return files, nil
}

// parseTree reads one page of the tree API. Directory entries are dropped.
func parseTree(resp *http.Response) ([]RemoteFile, error) {
	v, err := jason.NewValueFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode tree listing: %w", err)
	}
	entries, err := v.ObjectArray()
	if err != nil {
		return nil, fmt.Errorf("tree listing is not an array: %w", err)
	}

	files := make([]RemoteFile, 0, len(entries))
	for _, e := range entries {
		kind, _ := e.GetString("type")
		if kind != "file" {
			continue
		}
		path, err := e.GetString("path")
		if err != nil {
			return nil, fmt.Errorf("tree entry without path: %w", err)
		}
		size, _ := e.GetInt64("size")
		if lfsSize, err := e.GetInt64("lfs", "size"); err == nil {
			size = lfsSize
		}
		files = append(files, RemoteFile{Path: path, Size: size})
	}
	return files, nil
}
