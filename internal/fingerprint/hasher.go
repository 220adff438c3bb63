package fingerprint

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"

	"waveprint/internal/model"
)

// hashPair quantizes an accepted (f1, f2, dt) triple and mixes it into a
// 64-bit key. The packed layout before mixing is f1|f2|dt as three
// little-endian uint16s; xxhash spreads semantically close triples across
// the key space so bucket collisions stay rare.
func hashPair(anchor, target Peak, cfg Config) uint64 {
	f1 := uint16(anchor.FreqIdx / cfg.FreqQuantStep)
	f2 := uint16(target.FreqIdx / cfg.FreqQuantStep)
	dt := uint16((target.TimeIdx - anchor.TimeIdx) / cfg.DeltaQuantStep)

	var buf [6]byte
	binary.LittleEndian.PutUint16(buf[0:2], f1)
	binary.LittleEndian.PutUint16(buf[2:4], f2)
	binary.LittleEndian.PutUint16(buf[4:6], dt)
	return xxhash.Checksum64(buf[:])
}

// Hash pairs every peak, acting as anchor, with subsequent peaks inside
// its target zone: a forward time delta in [MinDeltaFrames, MaxDeltaFrames]
// and a frequency distance of at most MaxFreqDelta bins. Pairs per anchor
// are capped at FanOut, which keeps the record count linear in clip
// duration. Records come back in anchor order; the whole function is
// deterministic, so ingestion and query produce identical keys for
// identical audio.
func Hash(peaks []Peak, cfg Config) []model.Record {
	cfg = cfg.withDefaults()
	records := make([]model.Record, 0, len(peaks)*cfg.FanOut)
	for i := range peaks {
		anchor := peaks[i]
		paired := 0
		for j := i + 1; j < len(peaks) && paired < cfg.FanOut; j++ {
			target := peaks[j]
			dt := target.TimeIdx - anchor.TimeIdx
			if dt < cfg.MinDeltaFrames {
				continue
			}
			if dt > cfg.MaxDeltaFrames {
				break // peaks are time-ordered, no later target can qualify
			}
			if absInt(target.FreqIdx-anchor.FreqIdx) > cfg.MaxFreqDelta {
				continue
			}
			records = append(records, model.Record{
				Hash:       hashPair(anchor, target, cfg),
				AnchorTime: uint32(anchor.TimeIdx),
			})
			paired++
		}
	}
	return records
}

// Generate runs the full pipeline on a mono PCM buffer: spectrogram,
// peak extraction, pair hashing. This is the single entry point both
// ingestion and query go through.
func Generate(samples []float64, sampleRate int, cfg Config) ([]model.Record, error) {
	spec, err := Spectrogram(samples, sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	peaks := ExtractPeaks(spec, cfg)
	return Hash(peaks, cfg), nil
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
