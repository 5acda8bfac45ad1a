// conf/consts.go hard coded constants
package conf

const (
	SampleRate    = 48000 // Sample rate of the audio fed to BirdNET
	ASTSampleRate = 16000 // Sample rate of the audio fed to the Audio Spectrogram Transformer
	BitDepth      = 16    // Bit depth of processed recordings
	NumChannels   = 1     // Number of channels of processed recordings
	CaptureLength = 3     // Length of a BirdNET input window in seconds

	SplitTrain = "train"
	SplitTest  = "test"

	FamilyBirdNET = "birdnet"
	FamilyAST     = "ast"

	HeadSoftmax  = "softmax"
	HeadCentroid = "centroid"

	NormalizeNone = "none"
	NormalizePeak = "peak"
	NormalizeRMS  = "rms"
)
