package myaudio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavReadFrames is the number of frames decoded per PCMBuffer call
const wavReadFrames = 65536

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return AudioInfo{}, errors.New("invalid WAV file format")
	}
	if _, err := getAudioDivisor(int(decoder.BitDepth)); err != nil {
		return AudioInfo{}, err
	}
	if decoder.NumChans == 0 {
		return AudioInfo{}, fmt.Errorf("unsupported number of channels: %d", decoder.NumChans)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return AudioInfo{}, fmt.Errorf("reading WAV duration: %w", err)
	}

	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: int(duration.Seconds()*float64(decoder.SampleRate) + 0.5),
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

func readWAV(file *os.File) (*Clip, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("input is not a valid WAV audio file")
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	offset := wavOffset(int(decoder.BitDepth))
	numChans := int(decoder.NumChans)
	if numChans == 0 {
		return nil, fmt.Errorf("unsupported number of channels: %d", numChans)
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadFrames*numChans),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: numChans},
	}

	channels := make([][]float32, numChans)
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 {
			break
		}
		channels = deinterleave(buf.Data[:n], numChans, offset, divisor, channels)
	}

	return &Clip{SampleRate: int(decoder.SampleRate), Channels: channels}, nil
}
