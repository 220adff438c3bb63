package service

import (
	"waveprint/internal/fingerprint"
	"waveprint/internal/match"
	"waveprint/internal/store"
	"waveprint/pkg/logger"
)

type Config struct {
	DBPath      string
	Store       store.Store
	Fingerprint fingerprint.Config
	Match       match.Config
	Logger      *logger.Logger
}

type Option func(*Config)

// WithDBPath sets the sqlite database file used when no store is injected.
func WithDBPath(path string) Option {
	return func(c *Config) { c.DBPath = path }
}

// WithStore injects a store, bypassing the default sqlite backend.
func WithStore(st store.Store) Option {
	return func(c *Config) { c.Store = st }
}

func WithFingerprintConfig(cfg fingerprint.Config) Option {
	return func(c *Config) { c.Fingerprint = cfg }
}

func WithMatchConfig(cfg match.Config) Option {
	return func(c *Config) { c.Match = cfg }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func defaultConfig() *Config {
	return &Config{
		DBPath:      store.DefaultDBFile,
		Fingerprint: fingerprint.DefaultConfig(),
		Match:       match.DefaultConfig(),
		Logger:      logger.GetLogger(),
	}
}
