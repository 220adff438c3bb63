package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV renders int16 PCM frames to a WAV file.
func writeTestWAV(t *testing.T, path string, data []int, sampleRate, channels int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav file: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
}

func TestReadWAVMono(t *testing.T) {
	const sampleRate = 11025
	const n = sampleRate / 2

	data := make([]int, n)
	for i := range data {
		data[i] = int(30000 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}

	path := filepath.Join(t.TempDir(), "mono.wav")
	writeTestWAV(t, path, data, sampleRate, 1)

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != sampleRate {
		t.Errorf("got sample rate %d, want %d", rate, sampleRate)
	}
	if len(samples) != n {
		t.Errorf("got %d samples, want %d", len(samples), n)
	}
	for i, s := range samples {
		want := float64(data[i]) / 32768.0
		if math.Abs(s-want) > 1e-9 {
			t.Fatalf("sample %d = %f, want %f", i, s, want)
		}
		if s < -1.0 || s > 1.0 {
			t.Fatalf("sample %d = %f outside [-1, 1]", i, s)
		}
	}
}

func TestReadWAVDownmixesStereo(t *testing.T) {
	const sampleRate = 22050
	const frames = 1000

	// interleaved stereo with distinct channel values
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[i*2] = 10000
		data[i*2+1] = 20000
	}

	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeTestWAV(t, path, data, sampleRate, 2)

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != sampleRate {
		t.Errorf("got sample rate %d, want %d", rate, sampleRate)
	}
	if len(samples) != frames {
		t.Fatalf("got %d samples, want %d", len(samples), frames)
	}
	want := 15000.0 / 32768.0
	for i, s := range samples {
		if math.Abs(s-want) > 1e-9 {
			t.Fatalf("sample %d = %f, want channel average %f", i, s, want)
		}
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadWAV(path); err == nil {
		t.Error("expected an error for a non-WAV file")
	}
}

func TestReadWAVMissingFile(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
