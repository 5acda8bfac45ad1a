package myaudio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/tphakala/flac"
)

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, err
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

func readFLAC(file *os.File) (*Clip, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, err
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, err
	}

	numChans := decoder.NChannels
	bytesPerSample := decoder.BitsPerSample / 8
	channels := make([][]float32, numChans)
	for ch := range channels {
		channels[ch] = make([]float32, 0, decoder.TotalSamples)
	}

	// frames are interleaved little-endian PCM
	for {
		frame, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			ch := (i / bytesPerSample) % numChans
			channels[ch] = append(channels[ch], float32(decodeSample(frame[i:], decoder.BitsPerSample))/divisor)
		}
	}

	return &Clip{SampleRate: decoder.SampleRate, Channels: channels}, nil
}

func decodeSample(b []byte, bitsPerSample int) int32 {
	switch bitsPerSample {
	case 8:
		return int32(int8(b[0]))
	case 16:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v -= 1 << 24
		}
		return v
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}
