package hub

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

// MetadataFile is the per-split label table of the audiofolder convention
const MetadataFile = "metadata.csv"

// labelTable maps a repository path to its class label
type labelTable map[string]string

// fetchLabels downloads every metadata.csv in files and merges their rows.
// file_name entries are relative to the directory holding the CSV.
func (c *Client) fetchLabels(ctx context.Context, repo, revision string, files []RemoteFile) (labelTable, error) {
	labels := make(labelTable)
	for _, f := range files {
		if path.Base(f.Path) != MetadataFile {
			continue
		}
		resp, err := c.get(ctx, metrics.OpMetadata, c.resolveURL(repo, revision, f.Path))
		if err != nil {
			return nil, err
		}
		rows, err := parseMetadata(resp.Body, c.settings.LabelColumn)
		resp.Body.Close()
		if err != nil {
			return nil, errors.New(err).
				Component("hub").
				Category(errors.CategoryDataset).
				Context("file", f.Path).
				Build()
		}

		dir := path.Dir(f.Path)
		for name, label := range rows {
			labels[path.Join(dir, name)] = label
		}
	}
	return labels, nil
}

// parseMetadata reads a CSV with a file_name column and labelColumn.
func parseMetadata(r io.Reader, labelColumn string) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read metadata header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	fileCol := slices.Index(header, "file_name")
	labelCol := slices.Index(header, labelColumn)
	if fileCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("metadata needs columns file_name and %s, got %v", labelColumn, header)
	}

	rows := make(map[string]string)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read metadata row: %w", err)
		}
		if max(fileCol, labelCol) >= len(rec) {
			continue
		}
		name := strings.TrimSpace(rec[fileCol])
		label := strings.TrimSpace(rec[labelCol])
		if name == "" || label == "" {
			continue
		}
		rows[path.Clean(name)] = label
	}
	return rows, nil
}
