// Package store persists songs and their fingerprint records and serves
// batched reverse lookups keyed on the fingerprint hash. Three backends
// share the contract: sqlite (durable, relational), badger (durable,
// key-value) and memory (ephemeral, for tests and small corpora).
package store

import (
	"context"
	"errors"

	"waveprint/internal/model"
)

// ErrUnavailable wraps backend I/O failures so callers can tell a broken
// store apart from a legitimate empty result. Retry policy is theirs.
var ErrUnavailable = errors.New("store: unavailable")

// ErrSongNotFound is returned when a song ID has no row.
var ErrSongNotFound = errors.New("store: song not found")

// Store is the persistence contract for the fingerprint corpus.
//
// Concurrency: Lookup and the read-only accessors are safe to call in
// parallel with each other; writes are serialized by each backend so a
// reader never observes a partially committed song.
type Store interface {
	// CreateSong allocates a new song identity with no fingerprints yet.
	CreateSong(ctx context.Context, name, path string) (model.Song, error)

	// InsertFingerprints bulk-appends hash records for an existing song.
	InsertFingerprints(ctx context.Context, songID uint32, records []model.Record) error

	// Ingest creates the song and appends its records as one atomic unit:
	// either both are visible to later lookups, or neither is.
	Ingest(ctx context.Context, name, path string, records []model.Record) (model.Song, error)

	// Lookup resolves each query hash to the couples stored under it.
	// Hashes with no stored match are absent from the result map. Cost
	// scales with the number of actual matches, not with corpus size.
	Lookup(ctx context.Context, hashes []uint64) (map[uint64][]model.Couple, error)

	GetSong(ctx context.Context, songID uint32) (model.Song, error)
	ListSongs(ctx context.Context) ([]model.Song, error)
	FingerprintCount(ctx context.Context, songID uint32) (int, error)

	// DeleteSong removes a song and all of its fingerprints.
	DeleteSong(ctx context.Context, songID uint32) error

	Close() error
}
