package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"waveprint/internal/audio"
	"waveprint/internal/fingerprint"
	"waveprint/internal/match"
	"waveprint/internal/service"
	"waveprint/internal/store"
	"waveprint/pkg/logger"
)

var (
	success = color.New(color.FgGreen).PrintfFunc()
	failure = color.New(color.FgRed).PrintfFunc()
	notice  = color.New(color.FgCyan).PrintfFunc()
)

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openStore(backend, path string) (store.Store, error) {
	switch backend {
	case "sqlite":
		return store.NewSQLiteStore(path)
	case "badger":
		return store.NewBadgerStore(path)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newService(backend, dbPath string, minScore int) (*service.Service, error) {
	st, err := openStore(backend, dbPath)
	if err != nil {
		return nil, err
	}
	matchCfg := match.DefaultConfig()
	if minScore > 0 {
		matchCfg.MinScore = minScore
	}
	return service.New(
		service.WithStore(st),
		service.WithFingerprintConfig(fingerprint.DefaultConfig()),
		service.WithMatchConfig(matchCfg),
	)
}

func main() {
	_ = godotenv.Load()
	log := logger.GetLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Debugf("executing command: %s", command)

	switch command {
	case "ingest":
		handleIngest()
	case "ingest-dir":
		handleIngestDir()
	case "identify":
		handleIdentify()
	case "list":
		handleList()
	case "delete":
		handleDelete()
	case "stats":
		handleStats()
	default:
		failure("unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`waveprint - audio fingerprinting and identification

Usage:
  waveprint ingest <audio_file> [--name <name>] [flags]
  waveprint ingest-dir <directory> [--workers N] [flags]
  waveprint identify <audio_file> [--min-score N] [flags]
  waveprint list [flags]
  waveprint delete <song_id> [flags]
  waveprint stats [flags]

Flags:
  --db <path>        store location (env WAVEPRINT_DB_PATH)
  --backend <name>   sqlite | badger (env WAVEPRINT_BACKEND)
  --rate <hz>        processing sample rate (default 11025)
  --temp <dir>       temp dir for format conversion (default /tmp)`)
}

type globalFlags struct {
	dbPath     string
	backend    string
	sampleRate int
	tempDir    string
}

func registerGlobalFlags(fs *flag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.dbPath, "db", getEnvOrDefault("WAVEPRINT_DB_PATH", store.DefaultDBFile), "store location")
	fs.StringVar(&g.backend, "backend", getEnvOrDefault("WAVEPRINT_BACKEND", "sqlite"), "store backend (sqlite|badger)")
	fs.IntVar(&g.sampleRate, "rate", 11025, "processing sample rate")
	fs.StringVar(&g.tempDir, "temp", getEnvOrDefault("WAVEPRINT_TEMP_DIR", os.TempDir()), "temp dir for conversions")
	return g
}

// splitArgs separates leading positional arguments from flags.
func splitArgs(args []string) (positional []string, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func handleIngest() {
	positional, flagArgs := splitArgs(os.Args[2:])
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	g := registerGlobalFlags(fs)
	name := fs.String("name", "", "track name (defaults to file name)")
	fs.Parse(flagArgs)

	if len(positional) != 1 {
		failure("ingest needs exactly one audio file\n")
		os.Exit(1)
	}
	path := positional[0]
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	svc, err := newService(g.backend, g.dbPath, 0)
	if err != nil {
		failure("opening store: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	samples, rate, err := audio.LoadPCM(ctx, path, g.tempDir, g.sampleRate)
	if err != nil {
		failure("loading audio: %v\n", err)
		os.Exit(1)
	}

	song, err := svc.Ingest(ctx, *name, path, samples, rate)
	if err != nil {
		failure("ingest failed: %v\n", err)
		os.Exit(1)
	}
	success("ingested %q as song %d (key %s)\n", song.Name, song.ID, song.Key)
}

func handleIngestDir() {
	positional, flagArgs := splitArgs(os.Args[2:])
	fs := flag.NewFlagSet("ingest-dir", flag.ExitOnError)
	g := registerGlobalFlags(fs)
	workers := fs.Int("workers", runtime.NumCPU(), "parallel ingestion workers")
	fs.Parse(flagArgs)

	if len(positional) != 1 {
		failure("ingest-dir needs exactly one directory\n")
		os.Exit(1)
	}
	dir := positional[0]

	entries, err := os.ReadDir(dir)
	if err != nil {
		failure("reading directory: %v\n", err)
		os.Exit(1)
	}

	svc, err := newService(g.backend, g.dbPath, 0)
	if err != nil {
		failure("opening store: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	// fingerprinting is CPU-bound and independent per file; the store
	// serializes the writes
	fileCh := make(chan string, len(entries))
	var wg sync.WaitGroup
	var okCount, errCount int
	var mu sync.Mutex

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range fileCh {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				samples, rate, err := audio.LoadPCM(ctx, path, g.tempDir, g.sampleRate)
				if err == nil {
					_, err = svc.Ingest(ctx, name, path, samples, rate)
				}
				cancel()

				mu.Lock()
				if err != nil {
					errCount++
					failure("  %s: %v\n", name, err)
				} else {
					okCount++
					notice("  %s: ok\n", name)
				}
				mu.Unlock()
			}
		}()
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fileCh <- filepath.Join(dir, e.Name())
	}
	close(fileCh)
	wg.Wait()

	success("ingested %d tracks, %d failed\n", okCount, errCount)
}

func handleIdentify() {
	positional, flagArgs := splitArgs(os.Args[2:])
	fs := flag.NewFlagSet("identify", flag.ExitOnError)
	g := registerGlobalFlags(fs)
	minScore := fs.Int("min-score", 0, "minimum winning score (0 = default)")
	fs.Parse(flagArgs)

	if len(positional) != 1 {
		failure("identify needs exactly one audio file\n")
		os.Exit(1)
	}

	svc, err := newService(g.backend, g.dbPath, *minScore)
	if err != nil {
		failure("opening store: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	samples, rate, err := audio.LoadPCM(ctx, positional[0], g.tempDir, g.sampleRate)
	if err != nil {
		failure("loading audio: %v\n", err)
		os.Exit(1)
	}

	matches, err := svc.Identify(ctx, samples, rate)
	switch {
	case errors.Is(err, match.ErrNoMatch), errors.Is(err, service.ErrNoFingerprints):
		notice("no match found\n")
		return
	case err != nil:
		failure("identification failed: %v\n", err)
		os.Exit(1)
	}

	cfg := fingerprint.DefaultConfig()
	frameSec := float64(cfg.HopSize) / float64(rate)
	fmt.Printf("Top %d candidates:\n", len(matches))
	for rank, m := range matches {
		offsetSec := float64(m.Offset) * frameSec
		fmt.Printf("%d. %s (song %d)  score=%d  offset=%.1fs  confidence=%.1f%%\n",
			rank+1, m.Song.Name, m.SongID, m.Score, offsetSec, m.Confidence)
	}
}

func handleList() {
	_, flagArgs := splitArgs(os.Args[2:])
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	g := registerGlobalFlags(fs)
	fs.Parse(flagArgs)

	svc, err := newService(g.backend, g.dbPath, 0)
	if err != nil {
		failure("opening store: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	songs, err := svc.ListSongs(context.Background())
	if err != nil {
		failure("listing songs: %v\n", err)
		os.Exit(1)
	}
	if len(songs) == 0 {
		notice("store is empty\n")
		return
	}
	for _, s := range songs {
		fmt.Printf("%4d  %-40s  %s\n", s.ID, s.Name, s.Path)
	}
}

func handleDelete() {
	positional, flagArgs := splitArgs(os.Args[2:])
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	g := registerGlobalFlags(fs)
	fs.Parse(flagArgs)

	if len(positional) != 1 {
		failure("delete needs exactly one song id\n")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(positional[0], 10, 32)
	if err != nil {
		failure("invalid song id %q\n", positional[0])
		os.Exit(1)
	}

	svc, err := newService(g.backend, g.dbPath, 0)
	if err != nil {
		failure("opening store: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.DeleteSong(context.Background(), uint32(id)); err != nil {
		failure("delete failed: %v\n", err)
		os.Exit(1)
	}
	success("deleted song %d\n", id)
}

func handleStats() {
	_, flagArgs := splitArgs(os.Args[2:])
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	g := registerGlobalFlags(fs)
	fs.Parse(flagArgs)

	svc, err := newService(g.backend, g.dbPath, 0)
	if err != nil {
		failure("opening store: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx := context.Background()
	songs, err := svc.ListSongs(ctx)
	if err != nil {
		failure("listing songs: %v\n", err)
		os.Exit(1)
	}

	total := 0
	for _, s := range songs {
		count, err := svc.FingerprintCount(ctx, s.ID)
		if err != nil {
			failure("counting fingerprints for song %d: %v\n", s.ID, err)
			os.Exit(1)
		}
		total += count
		fmt.Printf("%4d  %-40s  %d fingerprints\n", s.ID, s.Name, count)
	}
	notice("%d songs, %d fingerprints total\n", len(songs), total)
}
