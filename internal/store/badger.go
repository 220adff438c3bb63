package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"waveprint/internal/model"
)

// Key layout:
//
//	s/<songID:4>                          -> JSON songValue
//	f/<hash:8><songID:4><anchor:4><seq:4> -> empty
//	m/next_id                             -> uint32
//
// All integers big-endian so prefix iteration over a hash visits exactly
// that hash's couples. Ingest flushes fingerprint keys first and commits
// the song row last; Lookup only reports couples whose song row exists,
// so a crashed half-written ingest is never visible to matching.
const (
	songPrefix = "s/"
	fpPrefix   = "f/"
	nextIDKey  = "m/next_id"
)

type songValue struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"fingerprints"`
}

// BadgerStore implements Store on a badger key-value database.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger db: %v", ErrUnavailable, err)
	}
	return &BadgerStore{db: db}, nil
}

func songKey(id uint32) []byte {
	k := make([]byte, len(songPrefix)+4)
	copy(k, songPrefix)
	binary.BigEndian.PutUint32(k[len(songPrefix):], id)
	return k
}

func hashPrefix(hash uint64) []byte {
	k := make([]byte, len(fpPrefix)+8)
	copy(k, fpPrefix)
	binary.BigEndian.PutUint64(k[len(fpPrefix):], hash)
	return k
}

func fpKey(hash uint64, songID, anchor, seq uint32) []byte {
	k := make([]byte, len(fpPrefix)+20)
	copy(k, fpPrefix)
	binary.BigEndian.PutUint64(k[len(fpPrefix):], hash)
	binary.BigEndian.PutUint32(k[len(fpPrefix)+8:], songID)
	binary.BigEndian.PutUint32(k[len(fpPrefix)+12:], anchor)
	binary.BigEndian.PutUint32(k[len(fpPrefix)+16:], seq)
	return k
}

func (s *BadgerStore) nextID() (uint32, error) {
	var id uint32
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(nextIDKey))
		switch err {
		case nil:
			if err := item.Value(func(val []byte) error {
				id = binary.BigEndian.Uint32(val)
				return nil
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
			id = 1
		default:
			return err
		}
		next := make([]byte, 4)
		binary.BigEndian.PutUint32(next, id+1)
		return txn.Set([]byte(nextIDKey), next)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: allocating song id: %v", ErrUnavailable, err)
	}
	return id, nil
}

func (s *BadgerStore) putSong(id uint32, val songValue) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(songKey(id), raw)
	})
}

func (s *BadgerStore) getSong(txn *badger.Txn, id uint32) (songValue, error) {
	var val songValue
	item, err := txn.Get(songKey(id))
	if err != nil {
		return val, err
	}
	err = item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, &val)
	})
	return val, err
}

func (s *BadgerStore) CreateSong(_ context.Context, name, path string) (model.Song, error) {
	id, err := s.nextID()
	if err != nil {
		return model.Song{}, err
	}
	val := songValue{Key: uuid.NewString(), Name: name, Path: path, CreatedAt: time.Now()}
	if err := s.putSong(id, val); err != nil {
		return model.Song{}, fmt.Errorf("%w: creating song: %v", ErrUnavailable, err)
	}
	return songFromValue(id, val), nil
}

func (s *BadgerStore) writeFingerprints(songID uint32, records []model.Record) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, r := range records {
		if err := wb.Set(fpKey(r.Hash, songID, r.AnchorTime, uint32(i)), nil); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) InsertFingerprints(_ context.Context, songID uint32, records []model.Record) error {
	var val songValue
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		val, err = s.getSong(txn, songID)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return ErrSongNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: querying song: %v", ErrUnavailable, err)
	}
	if err := s.writeFingerprints(songID, records); err != nil {
		return fmt.Errorf("%w: writing fingerprints: %v", ErrUnavailable, err)
	}
	val.Count += len(records)
	if err := s.putSong(songID, val); err != nil {
		return fmt.Errorf("%w: updating song: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) Ingest(_ context.Context, name, path string, records []model.Record) (model.Song, error) {
	id, err := s.nextID()
	if err != nil {
		return model.Song{}, err
	}
	// fingerprints first; they stay invisible until the song row commits
	if err := s.writeFingerprints(id, records); err != nil {
		return model.Song{}, fmt.Errorf("%w: writing fingerprints: %v", ErrUnavailable, err)
	}
	val := songValue{Key: uuid.NewString(), Name: name, Path: path, CreatedAt: time.Now(), Count: len(records)}
	if err := s.putSong(id, val); err != nil {
		return model.Song{}, fmt.Errorf("%w: committing song: %v", ErrUnavailable, err)
	}
	return songFromValue(id, val), nil
}

func (s *BadgerStore) songIDs(txn *badger.Txn) (map[uint32]struct{}, error) {
	ids := make(map[uint32]struct{})
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(songPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		ids[binary.BigEndian.Uint32(key[len(songPrefix):])] = struct{}{}
	}
	return ids, nil
}

func (s *BadgerStore) Lookup(_ context.Context, hashes []uint64) (map[uint64][]model.Couple, error) {
	result := make(map[uint64][]model.Couple, len(hashes))
	err := s.db.View(func(txn *badger.Txn) error {
		known, err := s.songIDs(txn)
		if err != nil {
			return err
		}
		for _, h := range hashes {
			prefix := hashPrefix(h)
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				key := it.Item().Key()
				songID := binary.BigEndian.Uint32(key[len(fpPrefix)+8:])
				if _, ok := known[songID]; !ok {
					continue // orphan from an uncommitted ingest
				}
				anchor := binary.BigEndian.Uint32(key[len(fpPrefix)+12:])
				result[h] = append(result[h], model.Couple{SongID: songID, AnchorTime: anchor})
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: batch lookup: %v", ErrUnavailable, err)
	}
	return result, nil
}

func (s *BadgerStore) GetSong(_ context.Context, songID uint32) (model.Song, error) {
	var val songValue
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		val, err = s.getSong(txn, songID)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return model.Song{}, ErrSongNotFound
	}
	if err != nil {
		return model.Song{}, fmt.Errorf("%w: querying song: %v", ErrUnavailable, err)
	}
	return songFromValue(songID, val), nil
}

func (s *BadgerStore) ListSongs(_ context.Context) ([]model.Song, error) {
	var songs []model.Song
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(songPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := binary.BigEndian.Uint32(item.Key()[len(songPrefix):])
			var val songValue
			if err := item.Value(func(raw []byte) error {
				return json.Unmarshal(raw, &val)
			}); err != nil {
				return err
			}
			songs = append(songs, songFromValue(id, val))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing songs: %v", ErrUnavailable, err)
	}
	return songs, nil
}

// FingerprintCount reads the count the song row maintains; Ingest and
// InsertFingerprints keep it in step with the fingerprint keys, so no
// keyspace scan is needed.
func (s *BadgerStore) FingerprintCount(_ context.Context, songID uint32) (int, error) {
	var val songValue
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		val, err = s.getSong(txn, songID)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return 0, ErrSongNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: counting fingerprints: %v", ErrUnavailable, err)
	}
	return val.Count, nil
}

// DeleteSong drops the song row first, which makes its couples invisible
// to Lookup, then purges the fingerprint keys with a full scan. The scan
// is the price of the hash-first key layout; deletion is rare.
func (s *BadgerStore) DeleteSong(_ context.Context, songID uint32) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(songKey(songID))
	}); err != nil {
		return fmt.Errorf("%w: deleting song: %v", ErrUnavailable, err)
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(fpPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if binary.BigEndian.Uint32(key[len(fpPrefix)+8:]) == songID {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scanning fingerprints: %v", ErrUnavailable, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("%w: purging fingerprints: %v", ErrUnavailable, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: purging fingerprints: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func songFromValue(id uint32, val songValue) model.Song {
	return model.Song{ID: id, Key: val.Key, Name: val.Name, Path: val.Path, CreatedAt: val.CreatedAt}
}
