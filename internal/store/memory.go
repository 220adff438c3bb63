package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"waveprint/internal/model"
)

// MemoryStore keeps the whole corpus in maps. Lookup is a straight hash
// index probe, so its cost follows the number of matching couples. The
// RWMutex gives the single-writer/multiple-reader discipline the contract
// requires; a partially ingested song is never observable because Ingest
// mutates both maps under one write lock.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint32
	songs   map[uint32]model.Song
	index   map[uint64][]model.Couple
	fpCount map[uint32]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		songs:   make(map[uint32]model.Song),
		index:   make(map[uint64][]model.Couple),
		fpCount: make(map[uint32]int),
	}
}

func (s *MemoryStore) CreateSong(_ context.Context, name, path string) (model.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(name, path), nil
}

func (s *MemoryStore) createLocked(name, path string) model.Song {
	song := model.Song{
		ID:        s.nextID,
		Key:       uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.songs[song.ID] = song
	return song
}

func (s *MemoryStore) InsertFingerprints(_ context.Context, songID uint32, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.songs[songID]; !ok {
		return ErrSongNotFound
	}
	s.insertLocked(songID, records)
	return nil
}

func (s *MemoryStore) insertLocked(songID uint32, records []model.Record) {
	for _, r := range records {
		s.index[r.Hash] = append(s.index[r.Hash], model.Couple{SongID: songID, AnchorTime: r.AnchorTime})
	}
	s.fpCount[songID] += len(records)
}

func (s *MemoryStore) Ingest(_ context.Context, name, path string, records []model.Record) (model.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	song := s.createLocked(name, path)
	s.insertLocked(song.ID, records)
	return song, nil
}

func (s *MemoryStore) Lookup(_ context.Context, hashes []uint64) (map[uint64][]model.Couple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[uint64][]model.Couple, len(hashes))
	for _, h := range hashes {
		if couples, ok := s.index[h]; ok {
			out := make([]model.Couple, len(couples))
			copy(out, couples)
			result[h] = out
		}
	}
	return result, nil
}

func (s *MemoryStore) GetSong(_ context.Context, songID uint32) (model.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	song, ok := s.songs[songID]
	if !ok {
		return model.Song{}, ErrSongNotFound
	}
	return song, nil
}

func (s *MemoryStore) ListSongs(_ context.Context) ([]model.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	songs := make([]model.Song, 0, len(s.songs))
	for id := uint32(1); id < s.nextID; id++ {
		if song, ok := s.songs[id]; ok {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

func (s *MemoryStore) FingerprintCount(_ context.Context, songID uint32) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.songs[songID]; !ok {
		return 0, ErrSongNotFound
	}
	return s.fpCount[songID], nil
}

func (s *MemoryStore) DeleteSong(_ context.Context, songID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.songs, songID)
	delete(s.fpCount, songID)
	for h, couples := range s.index {
		kept := couples[:0]
		for _, c := range couples {
			if c.SongID != songID {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(s.index, h)
		} else {
			s.index[h] = kept
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
