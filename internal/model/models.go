package model

import "time"

// Record is one fingerprint produced by the hashing pipeline: a packed
// hash key plus the time frame of the anchor peak it was derived from.
type Record struct {
	Hash       uint64
	AnchorTime uint32 // anchor peak's frame index within the clip
}

// Couple is the stored value for a hash bucket entry, pointing back at
// the song the record belongs to.
type Couple struct {
	SongID     uint32
	AnchorTime uint32
}

// Song is one ingested reference track.
type Song struct {
	ID        uint32
	Key       string // external reference key (UUID)
	Name      string
	Path      string
	CreatedAt time.Time
}

// Match is a ranked candidate returned by the match engine.
type Match struct {
	SongID     uint32
	Song       Song
	Score      int   // votes in the best offset bin
	Offset     int32 // storedAnchorTime - queryAnchorTime, in frames
	Confidence float64
}
