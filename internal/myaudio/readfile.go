package myaudio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wolfhowl/bioacoustics/internal/logger"
)

// SupportedExtensions lists the file extensions ReadFile understands.
var SupportedExtensions = []string{".wav", ".flac"}

// IsSupported reports whether path has a readable audio extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadFile decodes a WAV or FLAC file into a Clip, keeping all channels.
func ReadFile(path string) (*Clip, error) {
	file, err := os.Open(path) //nolint:gosec // dataset paths come from the caller
	if err != nil {
		return nil, fileError(err, "open-audio", path)
	}
	defer file.Close()

	var clip *Clip
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		clip, err = readWAV(file)
	case ".flac":
		clip, err = readFLAC(file)
	default:
		return nil, audioError(fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path)), "read-audio", path)
	}
	if err != nil {
		return nil, audioError(fmt.Errorf("decode %s: %w", filepath.Base(path), err), "read-audio", path)
	}

	GetLogger().Trace("decoded audio file",
		logger.String("path", path),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Int("channels", clip.NumChannels()),
		logger.Int("frames", clip.Len()))

	return clip, nil
}

// ReadInfo reads only the header of a WAV or FLAC file.
func ReadInfo(path string) (AudioInfo, error) {
	file, err := os.Open(path) //nolint:gosec // dataset paths come from the caller
	if err != nil {
		return AudioInfo{}, fileError(err, "open-audio", path)
	}
	defer file.Close()

	var info AudioInfo
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		info, err = readWAVInfo(file)
	case ".flac":
		info, err = readFLACInfo(file)
	default:
		return AudioInfo{}, audioError(fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path)), "read-info", path)
	}
	if err != nil {
		return AudioInfo{}, audioError(err, "read-info", path)
	}
	return info, nil
}

// getAudioDivisor returns the integer-to-float scale for a PCM bit depth.
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
}

// wavOffset returns the zero level of WAV PCM samples. 8-bit WAV is
// unsigned, every other depth is signed.
func wavOffset(bitDepth int) int {
	if bitDepth == 8 {
		return 128
	}
	return 0
}

// deinterleave splits interleaved integer samples into per-channel floats.
func deinterleave(data []int, numChans, offset int, divisor float32, dst [][]float32) [][]float32 {
	if dst == nil {
		dst = make([][]float32, numChans)
	}
	for i, v := range data {
		ch := i % numChans
		dst[ch] = append(dst[ch], float32(v-offset)/divisor)
	}
	return dst
}
