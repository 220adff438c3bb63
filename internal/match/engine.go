// Package match reconstructs which stored track a query clip came from,
// given the clip's fingerprint records and a store to look them up in.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"waveprint/internal/model"
	"waveprint/internal/store"
)

// ErrNoMatch means the best candidate scored below the configured
// minimum. It is an outcome, not a failure; callers must not conflate it
// with store errors.
var ErrNoMatch = errors.New("match: no candidate above threshold")

// Config holds the scoring knobs.
type Config struct {
	// MinScore is the smallest winning histogram bin that still counts
	// as an identification. Below it the engine reports ErrNoMatch.
	MinScore int
	// TopK caps how many ranked candidates are returned.
	TopK int
	// OffsetBinWidth groups offsets (in frames) into histogram bins,
	// absorbing minor timing jitter. 1 means exact frame alignment.
	OffsetBinWidth int32
}

func DefaultConfig() Config {
	return Config{MinScore: 5, TopK: 5, OffsetBinWidth: 1}
}

// Engine evaluates queries against a store snapshot. It keeps no state
// between invocations, so instances are safe for concurrent use.
type Engine struct {
	store store.Store
	cfg   Config
}

func NewEngine(st store.Store, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.OffsetBinWidth <= 0 {
		cfg.OffsetBinWidth = 1
	}
	return &Engine{store: st, cfg: cfg}
}

// Match looks up every distinct query hash, builds a per-song histogram
// over anchor-time offsets (stored minus query) and scores each song by
// its largest bin: the number of hashes agreeing on one time alignment.
// Coincidental collisions scatter across offsets and never accumulate.
// Candidates are ranked by descending score, ties by ascending song ID;
// a top score below MinScore yields ErrNoMatch.
func (e *Engine) Match(ctx context.Context, records []model.Record) ([]model.Match, error) {
	if len(records) == 0 {
		return nil, ErrNoMatch
	}

	// distinct hashes, keeping every query anchor per hash
	anchorsByHash := make(map[uint64][]uint32, len(records))
	for _, r := range records {
		anchorsByHash[r.Hash] = append(anchorsByHash[r.Hash], r.AnchorTime)
	}
	hashes := make([]uint64, 0, len(anchorsByHash))
	for h := range anchorsByHash {
		hashes = append(hashes, h)
	}

	buckets, err := e.store.Lookup(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}

	type histogram struct {
		counts  map[int32]int
		offsets map[int32]int32 // bin -> representative raw offset
	}
	votes := make(map[uint32]*histogram)

	for h, couples := range buckets {
		for _, queryAnchor := range anchorsByHash[h] {
			for _, c := range couples {
				offset := int32(c.AnchorTime) - int32(queryAnchor)
				bin := floorDiv(offset, e.cfg.OffsetBinWidth)
				hist := votes[c.SongID]
				if hist == nil {
					hist = &histogram{counts: make(map[int32]int), offsets: make(map[int32]int32)}
					votes[c.SongID] = hist
				}
				if _, seen := hist.offsets[bin]; !seen {
					hist.offsets[bin] = offset
				}
				hist.counts[bin]++
			}
		}
	}

	matches := make([]model.Match, 0, len(votes))
	for songID, hist := range votes {
		bestBin := int32(0)
		bestCount := 0
		for bin, count := range hist.counts {
			if count > bestCount || (count == bestCount && bin < bestBin) {
				bestCount = count
				bestBin = bin
			}
		}
		matches = append(matches, model.Match{
			SongID:     songID,
			Score:      bestCount,
			Offset:     hist.offsets[bestBin],
			Confidence: float64(bestCount) / float64(len(records)) * 100,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].SongID < matches[j].SongID
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) == 0 || matches[0].Score < e.cfg.MinScore {
		return nil, ErrNoMatch
	}
	if len(matches) > e.cfg.TopK {
		matches = matches[:e.cfg.TopK]
	}

	for i := range matches {
		song, err := e.store.GetSong(ctx, matches[i].SongID)
		if err != nil {
			if errors.Is(err, store.ErrSongNotFound) {
				continue // deleted between lookup and metadata fetch
			}
			return nil, fmt.Errorf("fetching song metadata: %w", err)
		}
		matches[i].Song = song
	}
	return matches, nil
}

// floorDiv divides rounding toward negative infinity, so negative
// offsets land in stable bins.
func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
