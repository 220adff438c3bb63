package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// ConvertConfig controls the ffmpeg transcode.
type ConvertConfig struct {
	SampleRate int // target rate, e.g. 11025, 22050, 44100
}

// ConvertToMonoWAV transcodes any ffmpeg-readable audio file to mono
// 16-bit PCM WAV at the configured sample rate, writing the result into
// outputDir. The core pipeline never parses compressed formats itself;
// this is the decoding collaborator it relies on.
func ConvertToMonoWAV(ctx context.Context, inputPath, outputDir string, cfg ConvertConfig) (string, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 11025
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(inputPath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	outputPath := filepath.Join(outputDir, base+".wav")
	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		tmpPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return "", fmt.Errorf("moving converted file: %w", err)
	}
	return outputPath, nil
}

// wavSampleRate reads only the format header of a WAV file.
func wavSampleRate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file: %s", path)
	}
	return int(decoder.SampleRate), nil
}

// LoadPCM reads any supported audio file as mono float64 PCM at the
// target sample rate. WAV files already at that rate are decoded
// directly; everything else, including WAVs recorded at another rate,
// is resampled through ffmpeg. Ingestion and query must end up at the
// same rate or their spectral bins will not line up.
func LoadPCM(ctx context.Context, path, tempDir string, sampleRate int) ([]float64, int, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		rate, err := wavSampleRate(path)
		if err != nil {
			return nil, 0, err
		}
		if sampleRate <= 0 || rate == sampleRate {
			return ReadWAV(path)
		}
	}
	wavPath, err := ConvertToMonoWAV(ctx, path, tempDir, ConvertConfig{SampleRate: sampleRate})
	if err != nil {
		return nil, 0, fmt.Errorf("audio conversion failed: %w", err)
	}
	defer os.Remove(wavPath)
	return ReadWAV(wavPath)
}
