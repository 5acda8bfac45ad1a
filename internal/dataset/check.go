package dataset

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// CheckOptions controls Check
type CheckOptions struct {
	SampleRate  int  // expected rate, 0 skips the check
	ContentHash bool // also detect identical audio stored under different names
}

// Issue is a single integrity violation
type Issue struct {
	Kind   error
	Path   string
	Detail string
}

func (i Issue) String() string {
	return fmt.Sprintf("%v: %s (%s)", i.Kind, i.Path, i.Detail)
}

// CheckReport summarizes Check
type CheckReport struct {
	Recordings int
	Classes    int
	Issues     []Issue
}

// Check verifies that no recording is shared between train and test, that
// every test class exists in train and, when requested, that every file is at
// opts.SampleRate. Sample rates are only checked for recordings scanned with
// ReadInfo. The returned error joins one wrapped sentinel per issue kind.
func Check(ctx context.Context, ds *Dataset, opts CheckOptions) (*CheckReport, error) {
	report := &CheckReport{
		Recordings: len(ds.Recordings),
		Classes:    len(ds.Classes(conf.SplitTrain)),
	}

	trainIDs := make(map[string]string)
	trainClasses := make(map[string]struct{})
	for _, r := range ds.Split(conf.SplitTrain) {
		trainIDs[r.ID()] = r.Path
		trainClasses[r.Class] = struct{}{}
	}

	for _, r := range ds.Split(conf.SplitTest) {
		if other, ok := trainIDs[r.ID()]; ok {
			report.Issues = append(report.Issues, Issue{Kind: ErrSplitLeakage, Path: r.Path, Detail: "same name as " + other})
		}
		if _, ok := trainClasses[r.Class]; !ok {
			report.Issues = append(report.Issues, Issue{Kind: ErrLabelClosure, Path: r.Path, Detail: "class " + r.Class})
		}
	}

	if opts.ContentHash {
		issues, err := contentLeaks(ctx, ds)
		if err != nil {
			return nil, err
		}
		report.Issues = append(report.Issues, issues...)
	}

	if opts.SampleRate > 0 {
		for _, r := range ds.Recordings {
			if r.Info.SampleRate != 0 && r.Info.SampleRate != opts.SampleRate {
				report.Issues = append(report.Issues, Issue{
					Kind:   ErrSampleRate,
					Path:   r.Path,
					Detail: fmt.Sprintf("%d Hz, want %d Hz", r.Info.SampleRate, opts.SampleRate),
				})
			}
		}
	}

	if len(report.Issues) == 0 {
		GetLogger().Info("dataset check passed",
			logger.Int("recordings", report.Recordings),
			logger.Int("classes", report.Classes))
		return report, nil
	}

	seen := make(map[error]int)
	for _, is := range report.Issues {
		seen[is.Kind]++
	}
	var errs []error
	for _, kind := range []error{ErrSplitLeakage, ErrLabelClosure, ErrSampleRate} {
		if n := seen[kind]; n > 0 {
			errs = append(errs, fmt.Errorf("%w: %d recordings", kind, n))
		}
	}
	return report, errors.New(errors.Join(errs...)).
		Component("dataset").
		Category(errors.CategoryValidation).
		Context("operation", "check").
		Context("issues", len(report.Issues)).
		Build()
}

// contentLeaks hashes every file and reports test recordings whose bytes
// match a train recording.
func contentLeaks(ctx context.Context, ds *Dataset) ([]Issue, error) {
	trainHashes := make(map[uint64]string)
	for _, r := range ds.Split(conf.SplitTrain) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		h, err := hashFile(r.Path)
		if err != nil {
			return nil, err
		}
		trainHashes[h] = r.Path
	}

	var issues []Issue
	for _, r := range ds.Split(conf.SplitTest) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		h, err := hashFile(r.Path)
		if err != nil {
			return nil, err
		}
		if other, ok := trainHashes[h]; ok {
			issues = append(issues, Issue{Kind: ErrSplitLeakage, Path: r.Path, Detail: "same content as " + other})
		}
	}
	return issues, nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // corpus paths come from the caller
	if err != nil {
		return 0, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return d.Sum64(), nil
}
