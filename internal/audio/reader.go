// Package audio adapts external audio sources to the mono float64 PCM
// buffers the fingerprint pipeline consumes. Compressed formats are
// handled by shelling out to ffmpeg (see processor.go); this file only
// decodes PCM WAV.
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ReadWAV decodes a PCM WAV file into mono float64 samples in [-1, 1]
// and returns them with the file's sample rate. Multi-channel input is
// downmixed by averaging.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding pcm data: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("wav file contains no samples")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count %d", channels)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	nFrames := len(buf.Data) / channels
	samples := make([]float64, nFrames)
	for i := 0; i < nFrames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / scale
	}
	return samples, buf.Format.SampleRate, nil
}
