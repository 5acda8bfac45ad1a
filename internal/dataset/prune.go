package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
)

// ClassMapFile is written to the corpus root when classes are renamed
const ClassMapFile = "classes.json"

// PruneOptions controls Prune
type PruneOptions struct {
	MinFiles int
	Rename   bool
	BaseName string
}

// PruneResult lists what Prune did
type PruneResult struct {
	Removed []string          `json:"removed"`
	Kept    []string          `json:"kept"`
	Renamed map[string]string `json:"renamed,omitempty"` // old -> new
}

// Prune removes every class that has fewer than MinFiles recordings in either
// the train or the test split of root. A class missing from one split counts
// as zero there. With Rename, survivors become <BaseName>_1..N in sorted
// order, using the same mapping in both splits, and the mapping is written to
// classes.json.
func Prune(root string, opts PruneOptions) (*PruneResult, error) {
	counts := make(map[string][2]int)
	for i, split := range []string{conf.SplitTrain, conf.SplitTest} {
		n, err := countFiles(filepath.Join(root, split))
		if err != nil {
			return nil, err
		}
		for class, c := range n {
			v := counts[class]
			v[i] = c
			counts[class] = v
		}
	}

	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	result := &PruneResult{}
	for _, class := range classes {
		c := counts[class]
		if min(c[0], c[1]) >= opts.MinFiles {
			result.Kept = append(result.Kept, class)
			continue
		}
		for _, split := range []string{conf.SplitTrain, conf.SplitTest} {
			if err := os.RemoveAll(filepath.Join(root, split, class)); err != nil {
				return nil, pruneError(err, "remove-class", class)
			}
		}
		result.Removed = append(result.Removed, class)
		GetLogger().Info("removed class",
			logger.String("class", class),
			logger.Int("train", c[0]),
			logger.Int("test", c[1]),
			logger.Int("min_files", opts.MinFiles))
	}

	if opts.Rename && len(result.Kept) > 0 {
		renamed, err := renameClasses(root, result.Kept, opts.BaseName)
		if err != nil {
			return nil, err
		}
		result.Renamed = renamed
	}
	return result, nil
}

// countFiles counts audio files per class directory. A missing split counts as empty.
func countFiles(splitDir string) (map[string]int, error) {
	counts := make(map[string]int)
	entries, err := os.ReadDir(splitDir)
	if os.IsNotExist(err) {
		return counts, nil
	}
	if err != nil {
		return nil, pruneError(err, "read-split", splitDir)
	}

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(splitDir, e.Name()))
		if err != nil {
			return nil, pruneError(err, "read-class", e.Name())
		}
		n := 0
		for _, f := range files {
			if !f.IsDir() && myaudio.IsSupported(f.Name()) {
				n++
			}
		}
		counts[e.Name()] = n
	}
	return counts, nil
}

// renameClasses renames in two passes through temporary names so that a
// survivor already called <base>_k cannot collide with another target.
func renameClasses(root string, classes []string, base string) (map[string]string, error) {
	mapping := make(map[string]string, len(classes))
	for i, class := range classes {
		mapping[class] = fmt.Sprintf("%s_%d", base, i+1)
	}

	splits := []string{conf.SplitTrain, conf.SplitTest}
	for i, class := range classes {
		for _, split := range splits {
			if err := renameIfExists(filepath.Join(root, split, class), filepath.Join(root, split, tempName(i))); err != nil {
				return nil, pruneError(err, "rename-class", class)
			}
		}
	}
	for i, class := range classes {
		for _, split := range splits {
			if err := renameIfExists(filepath.Join(root, split, tempName(i)), filepath.Join(root, split, mapping[class])); err != nil {
				return nil, pruneError(err, "rename-class", class)
			}
		}
	}

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return nil, pruneError(err, "write-class-map", root)
	}
	if err := os.WriteFile(filepath.Join(root, ClassMapFile), data, 0o644); err != nil { //nolint:gosec // class map is not sensitive
		return nil, pruneError(err, "write-class-map", root)
	}

	GetLogger().Info("renamed classes", logger.Int("count", len(mapping)), logger.String("base", base))
	return mapping, nil
}

func tempName(i int) string {
	return fmt.Sprintf(".rename-%d", i)
}

func renameIfExists(from, to string) error {
	if _, err := os.Stat(from); os.IsNotExist(err) {
		return nil
	}
	return os.Rename(from, to)
}

func pruneError(err error, op, target string) error {
	return errors.New(err).
		Component("dataset").
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("target", target).
		Build()
}
