// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) []string{
		validateHubSettings,
		validatePreprocessSettings,
		validateTrainSettings,
		validateEvaluateSettings,
		validateGameSettings,
		validateOutputSettings,
		validateTelemetrySettings,
	} {
		ve.Errors = append(ve.Errors, check(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateHubSettings(s *Settings) []string {
	var errs []string
	u, err := url.Parse(s.Hub.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("hub.endpoint %q is not an http(s) URL", s.Hub.Endpoint))
	}
	if s.Hub.Revision == "" {
		errs = append(errs, "hub.revision must not be empty")
	}
	if s.Hub.RequestsPerSecond < 0 {
		errs = append(errs, "hub.requestspersecond must not be negative")
	}
	for from, to := range s.Hub.SplitAliases {
		if to != SplitTrain && to != SplitTest {
			errs = append(errs, fmt.Sprintf("hub.splitaliases[%s] must map to %q or %q", from, SplitTrain, SplitTest))
		}
	}
	return errs
}

func validatePreprocessSettings(s *Settings) []string {
	var errs []string
	p := &s.Preprocess

	if p.TargetRate < 0 || (p.TargetRate > 0 && p.TargetRate < 8000) {
		errs = append(errs, fmt.Sprintf("preprocess.targetrate %d must be 0 or at least 8000", p.TargetRate))
	}
	if !slices.Contains([]int{16, 24, 32}, p.BitDepth) {
		errs = append(errs, fmt.Sprintf("preprocess.bitdepth %d must be 16, 24 or 32", p.BitDepth))
	}
	if !slices.Contains([]string{NormalizeNone, NormalizePeak, NormalizeRMS}, p.Normalize.Mode) {
		errs = append(errs, fmt.Sprintf("preprocess.normalize.mode %q must be none, peak or rms", p.Normalize.Mode))
	}
	if p.Normalize.PeakDBFS > 0 || p.Normalize.RMSDBFS > 0 {
		errs = append(errs, "preprocess.normalize targets are dBFS and must not be positive")
	}
	if p.Trim.MaxLength < 0 {
		errs = append(errs, "preprocess.trim.maxlength must not be negative")
	}
	if p.Assemble.Enabled && p.Assemble.SegmentLength <= 0 {
		errs = append(errs, "preprocess.assemble.segmentlength must be positive")
	}
	if p.Split.TrainRatio <= 0 || p.Split.TrainRatio >= 1 {
		errs = append(errs, fmt.Sprintf("preprocess.split.trainratio %.2f must be within (0, 1)", p.Split.TrainRatio))
	}
	if p.Prune.MinFiles < 0 {
		errs = append(errs, "preprocess.prune.minfiles must not be negative")
	}
	if p.Prune.Rename && strings.TrimSpace(p.Prune.BaseName) == "" {
		errs = append(errs, "preprocess.prune.basename is required when renaming")
	}
	if p.Workers < 0 {
		errs = append(errs, "preprocess.workers must not be negative")
	}
	return errs
}

func validateTrainSettings(s *Settings) []string {
	var errs []string
	t := &s.Train
	if t.Family != FamilyBirdNET && t.Family != FamilyAST {
		errs = append(errs, fmt.Sprintf("train.family %q must be %s or %s", t.Family, FamilyBirdNET, FamilyAST))
	}
	if t.Head != HeadSoftmax && t.Head != HeadCentroid {
		errs = append(errs, fmt.Sprintf("train.head %q must be %s or %s", t.Head, HeadSoftmax, HeadCentroid))
	}
	if t.Epochs <= 0 {
		errs = append(errs, "train.epochs must be positive")
	}
	if t.LearningRate <= 0 {
		errs = append(errs, "train.learningrate must be positive")
	}
	if t.BatchSize <= 0 {
		errs = append(errs, "train.batchsize must be positive")
	}
	if t.L2 < 0 {
		errs = append(errs, "train.l2 must not be negative")
	}
	return errs
}

func validateEvaluateSettings(s *Settings) []string {
	if s.Evaluate.TopK < 1 {
		return []string{"evaluate.topk must be at least 1"}
	}
	return nil
}

func validateGameSettings(s *Settings) []string {
	var errs []string
	if s.Game.SamplesPerClass < 1 {
		errs = append(errs, "game.samplesperclass must be at least 1")
	}
	if len(s.Game.Classes) > MaxGameClasses {
		errs = append(errs, fmt.Sprintf("game.classes supports at most %d classes", MaxGameClasses))
	}
	return errs
}

// MaxGameClasses bounds the permutation search used to score a round
const MaxGameClasses = 8

func validateOutputSettings(s *Settings) []string {
	var errs []string
	if s.Output.SQLite.Enabled && s.Output.MySQL.Enabled {
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	}
	if s.Output.SQLite.Enabled && s.Output.SQLite.Path == "" {
		errs = append(errs, "output.sqlite.path is required")
	}
	if s.Output.MySQL.Enabled && (s.Output.MySQL.Host == "" || s.Output.MySQL.Database == "") {
		errs = append(errs, "output.mysql.host and output.mysql.database are required")
	}
	return errs
}

func validateTelemetrySettings(s *Settings) []string {
	if s.Telemetry.Enabled && s.Telemetry.SentryDSN == "" {
		return []string{"telemetry.sentrydsn is required when telemetry is enabled"}
	}
	return nil
}
