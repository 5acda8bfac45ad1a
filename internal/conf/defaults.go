// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every setting.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/bioacoustics.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("hub.endpoint", "https://huggingface.co")
	viper.SetDefault("hub.token", "")
	viper.SetDefault("hub.tokenfile", "")
	viper.SetDefault("hub.revision", "main")
	viper.SetDefault("hub.labelcolumn", "label")
	viper.SetDefault("hub.splitaliases", map[string]string{"validation": SplitTest, "valid": SplitTest})
	viper.SetDefault("hub.extensions", []string{".wav", ".flac"})
	viper.SetDefault("hub.timeout", 5*time.Minute)
	viper.SetDefault("hub.requestspersecond", 5.0)

	viper.SetDefault("preprocess.targetrate", SampleRate)
	viper.SetDefault("preprocess.mono", true)
	viper.SetDefault("preprocess.trim.silence", false)
	viper.SetDefault("preprocess.trim.thresholddb", -50.0)
	viper.SetDefault("preprocess.trim.maxlength", 0.0)
	viper.SetDefault("preprocess.normalize.mode", NormalizeNone)
	viper.SetDefault("preprocess.normalize.peakdbfs", -1.0)
	viper.SetDefault("preprocess.normalize.rmsdbfs", -20.0)
	viper.SetDefault("preprocess.assemble.enabled", false)
	viper.SetDefault("preprocess.assemble.segmentlength", 6.0)
	viper.SetDefault("preprocess.assemble.keepremaining", false)
	viper.SetDefault("preprocess.split.trainratio", 0.8)
	viper.SetDefault("preprocess.split.seed", 42)
	viper.SetDefault("preprocess.prune.minfiles", 10)
	viper.SetDefault("preprocess.prune.rename", false)
	viper.SetDefault("preprocess.prune.basename", "class")
	viper.SetDefault("preprocess.bitdepth", BitDepth)
	viper.SetDefault("preprocess.workers", 0)
	viper.SetDefault("preprocess.skipunchanged", true)

	viper.SetDefault("features.cachettl", 30*time.Minute)
	viper.SetDefault("features.threads", 0)
	viper.SetDefault("features.birdnet.modelpath", "")
	viper.SetDefault("features.ast.modelpath", "")

	viper.SetDefault("train.family", FamilyBirdNET)
	viper.SetDefault("train.head", HeadSoftmax)
	viper.SetDefault("train.epochs", 200)
	viper.SetDefault("train.learningrate", 0.1)
	viper.SetDefault("train.batchsize", 32)
	viper.SetDefault("train.l2", 1e-4)
	viper.SetDefault("train.seed", 42)

	viper.SetDefault("evaluate.topk", 3)
	viper.SetDefault("evaluate.outputdir", "reports")
	viper.SetDefault("evaluate.persist", true)

	viper.SetDefault("game.classes", []string{})
	viper.SetDefault("game.samplesperclass", 5)
	viper.SetDefault("game.tempdir", "")
	viper.SetDefault("game.record", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "bioacoustics.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "bioacoustics")

	viper.SetDefault("metrics.textfile", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.sentrydsn", "")
	viper.SetDefault("telemetry.environment", "production")
}
