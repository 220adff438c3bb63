// Package service wires the fingerprint pipeline, the store and the
// match engine into the ingestion and identification contracts.
package service

import (
	"context"
	"errors"
	"fmt"

	"waveprint/internal/fingerprint"
	"waveprint/internal/match"
	"waveprint/internal/model"
	"waveprint/internal/store"
	"waveprint/pkg/logger"
)

// ErrNoFingerprints means the pipeline produced zero usable records for
// the input, e.g. silence or a clip far shorter than one window.
var ErrNoFingerprints = errors.New("service: insufficient fingerprint material")

// Service owns a store handle and evaluates every request against it.
// The pipeline stages are pure, so independent ingests and queries may
// run concurrently; the store provides the only synchronization.
type Service struct {
	store  store.Store
	fp     fingerprint.Config
	match  match.Config
	engine *match.Engine
	log    *logger.Logger
}

func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	st := cfg.Store
	if st == nil {
		var err error
		st, err = store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("creating store: %w", err)
		}
	}

	return &Service{
		store:  st,
		fp:     cfg.Fingerprint,
		match:  cfg.Match,
		engine: match.NewEngine(st, cfg.Match),
		log:    cfg.Logger,
	}, nil
}

// Ingest fingerprints a mono PCM buffer and commits the song together
// with its records as one atomic unit. A failed insert leaves no song
// row behind.
func (s *Service) Ingest(ctx context.Context, name, path string, samples []float64, sampleRate int) (model.Song, error) {
	records, err := fingerprint.Generate(samples, sampleRate, s.fp)
	if err != nil {
		return model.Song{}, err
	}
	if len(records) == 0 {
		return model.Song{}, ErrNoFingerprints
	}
	s.log.Debugf("ingest %q: %d records", name, len(records))

	song, err := s.store.Ingest(ctx, name, path, records)
	if err != nil {
		return model.Song{}, fmt.Errorf("storing %q: %w", name, err)
	}
	s.log.Infof("ingested %q as song %d (%d fingerprints)", name, song.ID, len(records))
	return song, nil
}

// Identify runs the same pipeline on a query clip and matches the result
// against the current store snapshot. It returns match.ErrNoMatch when
// nothing scores above the configured minimum, and ErrNoFingerprints
// when the clip yields no records at all.
func (s *Service) Identify(ctx context.Context, samples []float64, sampleRate int) ([]model.Match, error) {
	records, err := fingerprint.Generate(samples, sampleRate, s.fp)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoFingerprints
	}
	s.log.Debugf("query: %d records", len(records))

	matches, err := s.engine.Match(ctx, records)
	if err != nil {
		return nil, err
	}
	s.log.Infof("query matched song %d with score %d at offset %d",
		matches[0].SongID, matches[0].Score, matches[0].Offset)
	return matches, nil
}

func (s *Service) ListSongs(ctx context.Context) ([]model.Song, error) {
	return s.store.ListSongs(ctx)
}

func (s *Service) GetSong(ctx context.Context, songID uint32) (model.Song, error) {
	return s.store.GetSong(ctx, songID)
}

func (s *Service) DeleteSong(ctx context.Context, songID uint32) error {
	return s.store.DeleteSong(ctx, songID)
}

func (s *Service) FingerprintCount(ctx context.Context, songID uint32) (int, error) {
	return s.store.FingerprintCount(ctx, songID)
}

func (s *Service) Close() error {
	return s.store.Close()
}
