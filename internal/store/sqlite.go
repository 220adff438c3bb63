package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"waveprint/internal/model"
)

// DefaultDBFile is the sqlite database file used when no path is configured.
const DefaultDBFile = "waveprint.sqlite3"

// songRow and fingerprintRow are the persisted schema. The hash is kept
// as int64 with the uint64 bit pattern preserved, since sqlite has no
// unsigned 64-bit column type.
type songRow struct {
	ID        uint32 `gorm:"primaryKey;autoIncrement"`
	Key       string `gorm:"uniqueIndex:idx_song_key;type:varchar(36)"`
	Name      string `gorm:"index:idx_song_name"`
	Path      string
	CreatedAt time.Time
}

type fingerprintRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Hash       int64  `gorm:"index:idx_hash"`
	SongID     uint32 `gorm:"index:idx_song"`
	AnchorTime uint32
}

func (songRow) TableName() string        { return "songs" }
func (fingerprintRow) TableName() string { return "fingerprints" }

// SQLiteStore implements Store on a sqlite database through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates
// the schema. The connection pool allows parallel readers; sqlite itself
// serializes writers, which satisfies the single-writer discipline.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite db: %v", ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRow{}, &fingerprintRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSong(ctx context.Context, name, path string) (model.Song, error) {
	row := songRow{Key: uuid.NewString(), Name: name, Path: path}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Song{}, fmt.Errorf("%w: creating song: %v", ErrUnavailable, err)
	}
	return songFromRow(row), nil
}

func (s *SQLiteStore) InsertFingerprints(ctx context.Context, songID uint32, records []model.Record) error {
	if _, err := s.GetSong(ctx, songID); err != nil {
		return err
	}
	return s.insertFingerprintsTx(s.db.WithContext(ctx), songID, records)
}

func (s *SQLiteStore) insertFingerprintsTx(tx *gorm.DB, songID uint32, records []model.Record) error {
	rows := make([]fingerprintRow, 0, minIntStore(len(records), 1000))
	for _, r := range records {
		rows = append(rows, fingerprintRow{
			Hash:       int64(r.Hash),
			SongID:     songID,
			AnchorTime: r.AnchorTime,
		})
		if len(rows) >= 1000 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("%w: batch insert fingerprints: %v", ErrUnavailable, err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("%w: batch insert fingerprints: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Ingest commits the song row and every fingerprint row in one
// transaction, so a failed insert rolls the song back too.
func (s *SQLiteStore) Ingest(ctx context.Context, name, path string, records []model.Record) (model.Song, error) {
	var row songRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row = songRow{Key: uuid.NewString(), Name: name, Path: path}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("creating song: %w", err)
		}
		return s.insertFingerprintsTx(tx, row.ID, records)
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return model.Song{}, err
		}
		return model.Song{}, fmt.Errorf("%w: ingest: %v", ErrUnavailable, err)
	}
	return songFromRow(row), nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, hashes []uint64) (map[uint64][]model.Couple, error) {
	result := make(map[uint64][]model.Couple, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	keys := make([]int64, len(hashes))
	for i, h := range hashes {
		keys[i] = int64(h)
	}

	var rows []fingerprintRow
	if err := s.db.WithContext(ctx).Where("hash IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: batch lookup: %v", ErrUnavailable, err)
	}
	for _, r := range rows {
		h := uint64(r.Hash)
		result[h] = append(result[h], model.Couple{SongID: r.SongID, AnchorTime: r.AnchorTime})
	}
	return result, nil
}

func (s *SQLiteStore) GetSong(ctx context.Context, songID uint32) (model.Song, error) {
	var row songRow
	if err := s.db.WithContext(ctx).First(&row, songID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Song{}, ErrSongNotFound
		}
		return model.Song{}, fmt.Errorf("%w: querying song: %v", ErrUnavailable, err)
	}
	return songFromRow(row), nil
}

func (s *SQLiteStore) ListSongs(ctx context.Context) ([]model.Song, error) {
	var rows []songRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: listing songs: %v", ErrUnavailable, err)
	}
	songs := make([]model.Song, len(rows))
	for i, r := range rows {
		songs[i] = songFromRow(r)
	}
	return songs, nil
}

func (s *SQLiteStore) FingerprintCount(ctx context.Context, songID uint32) (int, error) {
	if _, err := s.GetSong(ctx, songID); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&fingerprintRow{}).Where("song_id = ?", songID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: counting fingerprints: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

func (s *SQLiteStore) DeleteSong(ctx context.Context, songID uint32) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&fingerprintRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", songID).Delete(&songRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: deleting song: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func songFromRow(r songRow) model.Song {
	return model.Song{ID: r.ID, Key: r.Key, Name: r.Name, Path: r.Path, CreatedAt: r.CreatedAt}
}

func minIntStore(a, b int) int {
	if a < b {
		return a
	}
	return b
}
