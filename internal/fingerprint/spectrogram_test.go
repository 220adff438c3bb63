package fingerprint

import (
	"errors"
	"math"
	"testing"
)

func sine(freq float64, sampleRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return samples
}

func TestSpectrogramFrameCount(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name       string
		samples    int
		wantFrames int
	}{
		{"exactly one window", cfg.WindowSize, 1},
		{"one window plus one hop", cfg.WindowSize + cfg.HopSize, 2},
		{"trailing samples dropped", cfg.WindowSize + cfg.HopSize + cfg.HopSize/2, 2},
		{"ten windows", cfg.WindowSize + 9*cfg.HopSize, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Spectrogram(make([]float64, tt.samples), 11025, cfg)
			if err != nil {
				t.Fatalf("Spectrogram failed: %v", err)
			}
			if len(spec) != tt.wantFrames {
				t.Errorf("got %d frames, want %d", len(spec), tt.wantFrames)
			}
		})
	}
}

func TestSpectrogramBinCount(t *testing.T) {
	cfg := DefaultConfig()
	spec, err := Spectrogram(sine(440, 11025, cfg.WindowSize*2), 11025, cfg)
	if err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}
	wantBins := cfg.WindowSize/2 + 1
	for i, frame := range spec {
		if len(frame) != wantBins {
			t.Fatalf("frame %d has %d bins, want %d", i, len(frame), wantBins)
		}
	}
}

func TestSpectrogramZeroPadsShortBuffer(t *testing.T) {
	cfg := DefaultConfig()
	spec, err := Spectrogram(make([]float64, 100), 11025, cfg)
	if err != nil {
		t.Fatalf("Spectrogram failed on short buffer: %v", err)
	}
	if len(spec) != 1 {
		t.Errorf("short buffer produced %d frames, want 1", len(spec))
	}
}

func TestSpectrogramZeroHopFallsBackToDefault(t *testing.T) {
	d := DefaultConfig()
	spec, err := Spectrogram(make([]float64, 4096), 11025, Config{WindowSize: d.WindowSize})
	if err != nil {
		t.Fatalf("Spectrogram failed with unset hop: %v", err)
	}
	want := (4096-d.WindowSize)/d.HopSize + 1
	if len(spec) != want {
		t.Errorf("got %d frames, want %d", len(spec), want)
	}
}

func TestSpectrogramRejectsBadInput(t *testing.T) {
	cfg := DefaultConfig()

	if _, err := Spectrogram(nil, 11025, cfg); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("empty buffer: got %v, want ErrEmptyBuffer", err)
	}
	if _, err := Spectrogram(sine(440, 11025, 2048), 0, cfg); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("zero sample rate: got %v, want ErrInvalidSampleRate", err)
	}
	if _, err := Spectrogram(sine(440, 11025, 2048), -1, cfg); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("negative sample rate: got %v, want ErrInvalidSampleRate", err)
	}
}

func TestSpectrogramToneLandsInExpectedBin(t *testing.T) {
	cfg := DefaultConfig()
	sampleRate := 11025
	bin := 64
	freq := float64(bin) * float64(sampleRate) / float64(cfg.WindowSize)

	spec, err := Spectrogram(sine(freq, sampleRate, cfg.WindowSize*4), sampleRate, cfg)
	if err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}

	frame := spec[1]
	maxBin := 0
	for i, m := range frame {
		if m > frame[maxBin] {
			maxBin = i
		}
	}
	if maxBin != bin {
		t.Errorf("tone at %.1f Hz peaked in bin %d, want %d", freq, maxBin, bin)
	}
}

func TestSpectrogramDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	samples := sine(523.25, 11025, cfg.WindowSize*8)

	first, err := Spectrogram(samples, 11025, cfg)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := Spectrogram(samples, 11025, cfg)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("frame counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("spectra differ at frame %d bin %d", i, j)
			}
		}
	}
}
