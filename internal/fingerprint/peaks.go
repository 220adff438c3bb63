package fingerprint

import (
	"math"
	"sort"
)

// Peak is a locally dominant time-frequency point of the spectrogram.
type Peak struct {
	TimeIdx int
	FreqIdx int
	Mag     float64
}

const dbEps = 1e-10 // floor to keep log10 defined on silent bins

func magDb(m float64) float64 {
	return 20.0 * math.Log10(m+dbEps)
}

// ExtractPeaks reduces a magnitude spectrogram to its constellation map.
// The spectrogram is partitioned into (TileFrames x TileBins) tiles; the
// strongest bin of each tile is a candidate, accepted only when it is the
// maximum of its local neighborhood and sits MinDbAboveMean dB above the
// neighborhood average. At most PeaksPerFrame peaks survive per frame,
// chosen by descending magnitude with ties broken by ascending frequency
// bin so the output is deterministic. Peaks come back ordered by
// (time, frequency). An empty spectrogram yields an empty list.
func ExtractPeaks(spec [][]float64, cfg Config) []Peak {
	if len(spec) == 0 || len(spec[0]) == 0 {
		return nil
	}
	cfg = cfg.withDefaults()

	nFrames := len(spec)
	nBins := len(spec[0])

	candidates := make([]Peak, 0, nFrames)
	for t0 := 0; t0 < nFrames; t0 += cfg.TileFrames {
		tEnd := minInt(t0+cfg.TileFrames, nFrames)
		for f0 := 0; f0 < nBins; f0 += cfg.TileBins {
			fEnd := minInt(f0+cfg.TileBins, nBins)

			// tile argmax, earliest frame then lowest bin on ties
			bestT, bestF := t0, f0
			bestMag := -1.0
			for t := t0; t < tEnd; t++ {
				for f := f0; f < fEnd; f++ {
					if spec[t][f] > bestMag {
						bestMag = spec[t][f]
						bestT, bestF = t, f
					}
				}
			}
			if bestMag <= 0 {
				continue
			}
			if locallyDominant(spec, bestT, bestF, bestMag, cfg) {
				candidates = append(candidates, Peak{TimeIdx: bestT, FreqIdx: bestF, Mag: bestMag})
			}
		}
	}

	return capPerFrame(candidates, cfg.PeaksPerFrame)
}

// locallyDominant checks that the candidate is the maximum of its
// (NeighborFrames x NeighborBins) neighborhood and exceeds the
// neighborhood dB mean by MinDbAboveMean. Broadband noise raises the
// mean together with the candidate, so it fails the margin check.
func locallyDominant(spec [][]float64, t, f int, mag float64, cfg Config) bool {
	nFrames := len(spec)
	nBins := len(spec[0])

	var sumDb float64
	var count int
	for dt := -cfg.NeighborFrames; dt <= cfg.NeighborFrames; dt++ {
		ti := t + dt
		if ti < 0 || ti >= nFrames {
			continue
		}
		for df := -cfg.NeighborBins; df <= cfg.NeighborBins; df++ {
			fi := f + df
			if fi < 0 || fi >= nBins {
				continue
			}
			if dt == 0 && df == 0 {
				continue
			}
			if spec[ti][fi] > mag {
				return false
			}
			sumDb += magDb(spec[ti][fi])
			count++
		}
	}
	if count == 0 {
		return true
	}
	return magDb(mag) >= sumDb/float64(count)+cfg.MinDbAboveMean
}

// capPerFrame keeps at most k peaks per time frame, by descending
// magnitude, ties by ascending frequency bin.
func capPerFrame(peaks []Peak, k int) []Peak {
	byFrame := make(map[int][]Peak)
	for _, p := range peaks {
		byFrame[p.TimeIdx] = append(byFrame[p.TimeIdx], p)
	}

	kept := make([]Peak, 0, len(peaks))
	for _, frame := range byFrame {
		sort.Slice(frame, func(i, j int) bool {
			if frame[i].Mag == frame[j].Mag {
				return frame[i].FreqIdx < frame[j].FreqIdx
			}
			return frame[i].Mag > frame[j].Mag
		})
		if len(frame) > k {
			frame = frame[:k]
		}
		kept = append(kept, frame...)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].TimeIdx == kept[j].TimeIdx {
			return kept[i].FreqIdx < kept[j].FreqIdx
		}
		return kept[i].TimeIdx < kept[j].TimeIdx
	})
	return kept
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
