package audio

import (
	"context"
	"math"
	"os/exec"
	"path/filepath"
	"testing"
)

func sineInt16(freq float64, sampleRate, n int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = int(28000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return data
}

func TestWAVSampleRateReadsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "header.wav")
	writeTestWAV(t, path, sineInt16(440, 22050, 2000), 22050, 1)

	rate, err := wavSampleRate(path)
	if err != nil {
		t.Fatalf("wavSampleRate failed: %v", err)
	}
	if rate != 22050 {
		t.Errorf("got rate %d, want 22050", rate)
	}
}

func TestLoadPCMDecodesMatchingRateDirectly(t *testing.T) {
	const sampleRate = 11025
	path := filepath.Join(t.TempDir(), "match.wav")
	writeTestWAV(t, path, sineInt16(440, sampleRate, sampleRate), sampleRate, 1)

	samples, rate, err := LoadPCM(context.Background(), path, t.TempDir(), sampleRate)
	if err != nil {
		t.Fatalf("LoadPCM failed: %v", err)
	}
	if rate != sampleRate {
		t.Errorf("got rate %d, want %d", rate, sampleRate)
	}
	if len(samples) != sampleRate {
		t.Errorf("got %d samples, want %d", len(samples), sampleRate)
	}
}

// A WAV at a different rate must come back resampled to the target,
// never at its native rate.
func TestLoadPCMResamplesMismatchedWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}

	const native, target = 44100, 11025
	path := filepath.Join(t.TempDir(), "hires.wav")
	writeTestWAV(t, path, sineInt16(440, native, native), native, 1)

	samples, rate, err := LoadPCM(context.Background(), path, t.TempDir(), target)
	if err != nil {
		t.Fatalf("LoadPCM failed: %v", err)
	}
	if rate != target {
		t.Errorf("got rate %d, want %d", rate, target)
	}
	// one second of audio, whatever the rate
	if math.Abs(float64(len(samples)-target)) > float64(target)/100 {
		t.Errorf("got %d samples, want about %d", len(samples), target)
	}
}
