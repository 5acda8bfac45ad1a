// Package dataset scans, splits, prunes and checks recording corpora laid out
// as <root>/<split>/<class>/<file>.
package dataset

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/myaudio"
)

var (
	// ErrSplitLeakage is returned when a recording appears in both splits
	ErrSplitLeakage = errors.NewStd("recording present in both train and test splits")
	// ErrLabelClosure is returned when the test split holds classes unknown to the train split
	ErrLabelClosure = errors.NewStd("test split contains classes missing from train split")
	// ErrSampleRate is returned when a recording is not at the expected sample rate
	ErrSampleRate = errors.NewStd("unexpected sample rate")
	// ErrEmptyDataset is returned when no recordings are found
	ErrEmptyDataset = errors.NewStd("no recordings found")
)

// Recording is one audio file of a corpus.
type Recording struct {
	Path  string
	Name  string // file name within the class directory
	Class string // NFC-normalized directory name
	Split string // train, test, or empty for an unsplit corpus

	// Info is only populated when scanning with ReadInfo.
	Info myaudio.AudioInfo
}

// ID identifies a recording independently of its split.
func (r Recording) ID() string {
	return r.Class + "/" + r.Name
}

// Dataset is a scanned corpus. Recordings are sorted by split, class and name.
type Dataset struct {
	Root       string
	Recordings []Recording
}

// ScanOptions controls Scan
type ScanOptions struct {
	ReadInfo bool // decode each file header
}

// Scan reads root. When root holds a train or test directory, each split is
// scanned; otherwise root itself is scanned as an unsplit <class>/<file> tree.
func Scan(ctx context.Context, root string, opts ScanOptions) (*Dataset, error) {
	ds := &Dataset{Root: root}

	var splits []string
	for _, s := range []string{conf.SplitTrain, conf.SplitTest} {
		if fi, err := os.Stat(filepath.Join(root, s)); err == nil && fi.IsDir() {
			splits = append(splits, s)
		}
	}

	if len(splits) == 0 {
		recs, err := ScanDir(ctx, root, "", opts)
		if err != nil {
			return nil, err
		}
		ds.Recordings = recs
	}
	for _, s := range splits {
		recs, err := ScanDir(ctx, filepath.Join(root, s), s, opts)
		if err != nil {
			return nil, err
		}
		ds.Recordings = append(ds.Recordings, recs...)
	}

	GetLogger().Debug("scanned dataset",
		logger.String("root", root),
		logger.Int("recordings", len(ds.Recordings)),
		logger.Int("splits", len(splits)))
	return ds, nil
}

// ScanDir reads a <class>/<file> tree and tags every recording with split.
// Hidden entries and unsupported extensions are skipped.
func ScanDir(ctx context.Context, dir, split string, opts ScanOptions) ([]Recording, error) {
	classDirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("operation", "scan").
			Context("dir", dir).
			Build()
	}

	var recs []Recording
	for _, cd := range classDirs {
		if !cd.IsDir() || strings.HasPrefix(cd.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, cd.Name()))
		if err != nil {
			return nil, errors.New(err).
				Component("dataset").
				Category(errors.CategoryFileIO).
				Context("operation", "scan").
				Context("dir", filepath.Join(dir, cd.Name())).
				Build()
		}

		class := norm.NFC.String(cd.Name())
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") || !myaudio.IsSupported(f.Name()) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, cancelled(err)
			}

			rec := Recording{
				Path:  filepath.Join(dir, cd.Name(), f.Name()),
				Name:  f.Name(),
				Class: class,
				Split: split,
			}
			if opts.ReadInfo {
				info, err := myaudio.ReadInfo(rec.Path)
				if err != nil {
					return nil, err
				}
				rec.Info = info
			}
			recs = append(recs, rec)
		}
	}

	slices.SortFunc(recs, func(a, b Recording) int {
		if c := strings.Compare(a.Class, b.Class); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return recs, nil
}

// Split returns the recordings of one split.
func (d *Dataset) Split(split string) []Recording {
	var out []Recording
	for _, r := range d.Recordings {
		if r.Split == split {
			out = append(out, r)
		}
	}
	return out
}

// Classes returns the sorted class names present in split.
func (d *Dataset) Classes(split string) []string {
	seen := make(map[string]struct{})
	for _, r := range d.Recordings {
		if r.Split == split {
			seen[r.Class] = struct{}{}
		}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	slices.Sort(classes)
	return classes
}

// ByClass groups the recordings of split by class.
func (d *Dataset) ByClass(split string) map[string][]Recording {
	out := make(map[string][]Recording)
	for _, r := range d.Recordings {
		if r.Split == split {
			out[r.Class] = append(out[r.Class], r)
		}
	}
	return out
}

func cancelled(err error) error {
	return errors.New(err).
		Component("dataset").
		Category(errors.CategoryCancellation).
		Build()
}

// GetLogger returns the dataset logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("dataset")
}
