package fingerprint

// Config controls every tunable in the spectrogram, peak extraction and
// hashing stages. Ingestion and query must run with the same Config or
// their hash keys will not collide.
type Config struct {
	WindowSize int // STFT window length in samples (power of 2)
	HopSize    int // samples between successive frames (must be < WindowSize)

	// Peak extraction.
	TileFrames     int     // time extent of a grid tile, in frames
	TileBins       int     // frequency extent of a grid tile, in bins
	NeighborBins   int     // +/- bins for the local-dominance check
	NeighborFrames int     // +/- frames for the local-dominance check
	MinDbAboveMean float64 // candidate must sit this many dB above its neighborhood mean
	PeaksPerFrame  int     // cap on accepted peaks per time frame

	// Pair hashing.
	FanOut         int // max pairs generated per anchor
	MinDeltaFrames int // minimum forward time delta for a pair
	MaxDeltaFrames int // maximum forward time delta for a pair
	MaxFreqDelta   int // max |f2-f1| in bins for a pair (target zone height)

	// Quantization bucket widths. The source material never pinned these
	// down, so they stay configurable; 1 means exact bins.
	FreqQuantStep  int
	DeltaQuantStep int
}

// withDefaults treats zero-valued sizing fields as unset and fills them
// from DefaultConfig. The pipeline entry points apply it so a partially
// populated Config falls back to defaults instead of dividing by zero.
// Fields where zero is meaningful (NeighborBins, NeighborFrames,
// MinDeltaFrames, MinDbAboveMean) pass through untouched.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.HopSize <= 0 {
		c.HopSize = d.HopSize
	}
	if c.TileFrames <= 0 {
		c.TileFrames = d.TileFrames
	}
	if c.TileBins <= 0 {
		c.TileBins = d.TileBins
	}
	if c.PeaksPerFrame <= 0 {
		c.PeaksPerFrame = d.PeaksPerFrame
	}
	if c.FanOut <= 0 {
		c.FanOut = d.FanOut
	}
	if c.MaxDeltaFrames <= 0 {
		c.MaxDeltaFrames = d.MaxDeltaFrames
	}
	if c.MaxFreqDelta <= 0 {
		c.MaxFreqDelta = d.MaxFreqDelta
	}
	if c.FreqQuantStep <= 0 {
		c.FreqQuantStep = d.FreqQuantStep
	}
	if c.DeltaQuantStep <= 0 {
		c.DeltaQuantStep = d.DeltaQuantStep
	}
	return c
}

// DefaultConfig returns parameters tuned for short music clips at
// 11025 Hz mono input.
func DefaultConfig() Config {
	return Config{
		WindowSize:     1024,
		HopSize:        256,
		TileFrames:     4,
		TileBins:       32,
		NeighborBins:   3,
		NeighborFrames: 1,
		MinDbAboveMean: 3.0,
		PeaksPerFrame:  5,
		FanOut:         6,
		MinDeltaFrames: 1,
		MaxDeltaFrames: 200,
		MaxFreqDelta:   128,
		FreqQuantStep:  1,
		DeltaQuantStep: 1,
	}
}
