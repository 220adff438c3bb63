package fingerprint

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

var (
	// ErrEmptyBuffer is returned when the input contains no samples.
	ErrEmptyBuffer = errors.New("fingerprint: empty sample buffer")
	// ErrInvalidSampleRate is returned for a zero or negative sample rate.
	ErrInvalidSampleRate = errors.New("fingerprint: invalid sample rate")
)

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// magnitudeSpectrum folds a complex spectrum down to the non-negative
// frequencies: floor(n/2)+1 bins including DC and Nyquist.
func magnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// Spectrogram computes the short-time magnitude spectrogram of a mono
// sample buffer: one spectrum of WindowSize/2+1 bins per hop position,
// time-major. A buffer shorter than one window is zero-padded to a single
// full window; trailing samples that cannot fill another hop are dropped.
// Pure and stateless: identical input always yields identical output.
func Spectrogram(samples []float64, sampleRate int, cfg Config) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyBuffer
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	cfg = cfg.withDefaults()

	ws := cfg.WindowSize
	hs := cfg.HopSize
	if len(samples) < ws {
		padded := make([]float64, ws)
		copy(padded, samples)
		samples = padded
	}

	window := Hamming(ws)
	nFrames := (len(samples)-ws)/hs + 1
	spec := make([][]float64, 0, nFrames)

	frame := make([]float64, ws)
	for start := 0; start+ws <= len(samples); start += hs {
		copy(frame, samples[start:start+ws])
		for i := 0; i < ws; i++ {
			frame[i] *= window[i]
		}
		spec = append(spec, magnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spec, nil
}
