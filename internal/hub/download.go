package hub

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// DownloadOptions selects what to fetch
type DownloadOptions struct {
	Repo     string
	Revision string // empty uses the configured revision
	Prefix   string // only files below this repository path
	OutDir   string
	Progress func(done, total int) // called after every file, may be nil
}

// Target is a planned download
type Target struct {
	Remote    RemoteFile
	Split     string // empty when the repository has no split level
	Class     string
	LocalPath string
}

// DownloadResult counts what Download did
type DownloadResult struct {
	Targets    []Target
	Downloaded int
	Skipped    int
	Bytes      int64
	Unlabeled  int // audio files that could not be assigned a class
}

// Download lists the repository, plans the local layout and fetches every
// audio file that is not already present with the same size.
// Downloads are sequential; the first failure aborts the run.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	revision := opts.Revision
	if revision == "" {
		revision = c.settings.Revision
	}
	prefix := strings.Trim(opts.Prefix, "/")

	files, err := c.ListFiles(ctx, opts.Repo, revision, prefix)
	if err != nil {
		return nil, err
	}
	labels, err := c.fetchLabels(ctx, opts.Repo, revision, files)
	if err != nil {
		return nil, err
	}

	result := &DownloadResult{}
	result.Targets, result.Unlabeled = c.plan(files, labels, prefix, opts.OutDir)
	if len(result.Targets) == 0 {
		return nil, errors.Newf("no labelled audio files found in %s", opts.Repo).
			Component("hub").
			Category(errors.CategoryNotFound).
			Context("prefix", prefix).
			Build()
	}

	for i, t := range result.Targets {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("hub").
				Category(errors.CategoryCancellation).
				Build()
		}

		if fi, err := os.Stat(t.LocalPath); err == nil && fi.Size() == t.Remote.Size {
			result.Skipped++
			if c.metrics != nil {
				c.metrics.RecordFile(t.Split, metrics.StatusSkipped)
			}
		} else {
			n, err := c.fetch(ctx, opts.Repo, revision, t)
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordFile(t.Split, metrics.StatusError)
				}
				return nil, err
			}
			result.Downloaded++
			result.Bytes += n
			if c.metrics != nil {
				c.metrics.RecordFile(t.Split, metrics.StatusSuccess)
				c.metrics.AddBytes(n)
			}
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(result.Targets))
		}
	}

	c.logger.Info("dataset download complete",
		logger.String("repo", opts.Repo),
		logger.String("revision", revision),
		logger.Int("downloaded", result.Downloaded),
		logger.Int("skipped", result.Skipped),
		logger.Int("unlabeled", result.Unlabeled),
		logger.Int64("bytes", result.Bytes))
	return result, nil
}

// plan maps repository files to local paths. Labels from metadata.csv win
// over directory names. Files without a class are counted and left out.
func (c *Client) plan(files []RemoteFile, labels labelTable, prefix, outDir string) ([]Target, int) {
	var targets []Target
	unlabeled := 0
	seen := make(map[string]struct{})

	for _, f := range files {
		if !c.isAudio(f.Path) {
			continue
		}
		rel := f.Path
		if prefix != "" {
			rel = strings.TrimPrefix(strings.TrimPrefix(f.Path, prefix), "/")
		}
		parts := strings.Split(rel, "/")

		var split, class string
		if label, ok := labels[f.Path]; ok {
			class = label
			if len(parts) >= 2 {
				split = parts[0]
			}
		} else {
			switch {
			case len(parts) >= 3:
				split, class = parts[0], parts[len(parts)-2]
			case len(parts) == 2:
				class = parts[0]
			}
		}
		if class == "" {
			unlabeled++
			c.logger.Debug("no class for file", logger.String("path", f.Path))
			continue
		}

		split = c.alias(split)
		local := filepath.Join(outDir, split, safeName(class), safeName(path.Base(f.Path)))
		if _, dup := seen[local]; dup {
			c.logger.Warn("duplicate local path, keeping first", logger.String("path", f.Path))
			continue
		}
		seen[local] = struct{}{}
		targets = append(targets, Target{Remote: f, Split: split, Class: class, LocalPath: local})
	}

	slices.SortFunc(targets, func(a, b Target) int { return strings.Compare(a.LocalPath, b.LocalPath) })
	return targets, unlabeled
}

func (c *Client) isAudio(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range c.settings.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// alias maps hub split names to local ones (validation -> test).
func (c *Client) alias(split string) string {
	s := strings.ToLower(split)
	if mapped, ok := c.settings.SplitAliases[s]; ok {
		return mapped
	}
	return s
}

// safeName keeps a label or file name within one path element.
func safeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	if name == "." || name == ".." || name == "" {
		return "_"
	}
	return name
}

// fetch downloads one target atomically and returns the number of bytes written.
func (c *Client) fetch(ctx context.Context, repo, revision string, t Target) (int64, error) {
	resp, err := c.get(ctx, metrics.OpDownload, c.resolveURL(repo, revision, t.Remote.Path))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(t.LocalPath), 0o755); err != nil {
		return 0, fileError(err, t.LocalPath)
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.LocalPath), ".download-*")
	if err != nil {
		return 0, fileError(err, t.LocalPath)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.New(err).
			Component("hub").
			Category(errors.CategoryNetwork).
			Context("operation", "download-body").
			Context("path", t.Remote.Path).
			Build()
	}
	if t.Remote.Size > 0 && n != t.Remote.Size {
		return 0, errors.New(fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, t.Remote.Size)).
			Component("hub").
			Category(errors.CategoryNetwork).
			Context("path", t.Remote.Path).
			Build()
	}

	if err := os.Rename(tmp.Name(), t.LocalPath); err != nil {
		return 0, fileError(err, t.LocalPath)
	}
	c.logger.Debug("downloaded file", logger.String("path", t.Remote.Path), logger.Int64("bytes", n))
	return n, nil
}

func fileError(err error, p string) error {
	return errors.New(err).
		Component("hub").
		Category(errors.CategoryFileIO).
		FileContext(p, 0).
		Build()
}
