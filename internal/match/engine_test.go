package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waveprint/internal/model"
	"waveprint/internal/store"
)

// seedSong ingests explicit records and returns the song.
func seedSong(t *testing.T, st store.Store, name string, records []model.Record) model.Song {
	t.Helper()
	song, err := st.Ingest(context.Background(), name, "/"+name+".wav", records)
	require.NoError(t, err)
	return song
}

// shifted builds query records whose anchors sit `shift` frames earlier
// than the stored ones, simulating an excerpt cut at that frame.
func shifted(records []model.Record, shift uint32) []model.Record {
	out := make([]model.Record, len(records))
	for i, r := range records {
		out[i] = model.Record{Hash: r.Hash, AnchorTime: r.AnchorTime - shift}
	}
	return out
}

func storedRecords(hashBase uint64, n int, anchorStart uint32) []model.Record {
	records := make([]model.Record, n)
	for i := range records {
		records[i] = model.Record{Hash: hashBase + uint64(i), AnchorTime: anchorStart + uint32(i*3)}
	}
	return records
}

func TestMatchAlignedOffsetWins(t *testing.T) {
	st := store.NewMemoryStore()
	records := storedRecords(100, 12, 200)
	song := seedSong(t, st, "aligned", records)

	engine := NewEngine(st, Config{MinScore: 5, TopK: 5, OffsetBinWidth: 1})

	// query cut 150 frames into the stored track
	matches, err := engine.Match(context.Background(), shifted(records, 150))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, song.ID, matches[0].SongID)
	assert.Equal(t, len(records), matches[0].Score, "all hashes agree on one alignment")
	assert.Equal(t, int32(150), matches[0].Offset)
	assert.Equal(t, "aligned", matches[0].Song.Name)
	assert.InDelta(t, 100.0, matches[0].Confidence, 0.01)
}

func TestMatchScatteredCollisionsDoNotAccumulate(t *testing.T) {
	st := store.NewMemoryStore()
	genuine := seedSong(t, st, "genuine", storedRecords(100, 10, 50))

	// a decoy sharing every hash but at incoherent anchor times
	decoyRecords := make([]model.Record, 10)
	for i := range decoyRecords {
		decoyRecords[i] = model.Record{Hash: 100 + uint64(i), AnchorTime: uint32(i * i * 17)}
	}
	seedSong(t, st, "decoy", decoyRecords)

	engine := NewEngine(st, Config{MinScore: 5, TopK: 5, OffsetBinWidth: 1})
	matches, err := engine.Match(context.Background(), shifted(storedRecords(100, 10, 50), 20))
	require.NoError(t, err)

	assert.Equal(t, genuine.ID, matches[0].SongID)
	assert.Equal(t, 10, matches[0].Score)
	if len(matches) > 1 {
		assert.Less(t, matches[1].Score, 3, "decoy votes must scatter across offsets")
	}
}

func TestMatchBelowThresholdIsNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	seedSong(t, st, "weak", storedRecords(100, 3, 10))

	engine := NewEngine(st, Config{MinScore: 5, TopK: 5, OffsetBinWidth: 1})
	_, err := engine.Match(context.Background(), shifted(storedRecords(100, 3, 10), 0))
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatchEmptyQueryIsNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st, Config{MinScore: 1, TopK: 5, OffsetBinWidth: 1})
	_, err := engine.Match(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatchNoStoredHashesIsNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	seedSong(t, st, "other", storedRecords(5000, 10, 0))

	engine := NewEngine(st, Config{MinScore: 1, TopK: 5, OffsetBinWidth: 1})
	_, err := engine.Match(context.Background(), storedRecords(100, 10, 0))
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatchTieBreaksOnAscendingSongID(t *testing.T) {
	st := store.NewMemoryStore()
	records := storedRecords(100, 8, 30)
	first := seedSong(t, st, "first", records)
	second := seedSong(t, st, "second", records)
	require.Less(t, first.ID, second.ID)

	engine := NewEngine(st, Config{MinScore: 5, TopK: 5, OffsetBinWidth: 1})
	matches, err := engine.Match(context.Background(), shifted(records, 10))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, first.ID, matches[0].SongID)
	assert.Equal(t, second.ID, matches[1].SongID)
}

func TestMatchTopKTruncation(t *testing.T) {
	st := store.NewMemoryStore()
	records := storedRecords(100, 6, 40)
	for i := 0; i < 5; i++ {
		seedSong(t, st, "copy", records)
	}

	engine := NewEngine(st, Config{MinScore: 1, TopK: 3, OffsetBinWidth: 1})
	matches, err := engine.Match(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestMatchOffsetBinWidthAbsorbsJitter(t *testing.T) {
	st := store.NewMemoryStore()
	records := storedRecords(100, 10, 100)
	song := seedSong(t, st, "jittery", records)

	// perturb half the query anchors by one frame
	query := shifted(records, 50)
	for i := 0; i < len(query); i += 2 {
		query[i].AnchorTime++
	}

	strict := NewEngine(st, Config{MinScore: 1, TopK: 5, OffsetBinWidth: 1})
	matches, err := strict.Match(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 5, matches[0].Score, "exact bins split the jittered votes")

	tolerant := NewEngine(st, Config{MinScore: 1, TopK: 5, OffsetBinWidth: 4})
	matches, err = tolerant.Match(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, song.ID, matches[0].SongID)
	assert.Equal(t, 10, matches[0].Score, "wider bins gather the jittered votes")
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		a, b, want int32
	}{
		{7, 4, 1},
		{8, 4, 2},
		{0, 4, 0},
		{-1, 4, -1},
		{-4, 4, -1},
		{-5, 4, -2},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
