package config

import (
	"time"

	"github.com/TheVisher/pawkit-sync/internal/blob"
)

// Config holds runtime settings for the Pawkit sync client.
//
// Fields:
//   - ServerURL: base URL of the sync server.
//   - DatabasePath: location of the local SQLite replica.
//   - SyncInterval: cadence of background sync passes.
//   - OnlineCheckInterval: how often the client probes server reachability
//     while offline.
//   - BroadcastAddr: listen address for the local websocket signal bridge;
//     empty disables it.
//   - QueueConcurrency: parallel pushes per drain pass.
//   - MaxAttempts: retry budget before a queue item parks.
//   - TombstoneRetention: how long soft-deleted records stay restorable.
//   - Blob: attachment storage backend; nil disables attachments.
type Config struct {
	ServerURL           string
	DatabasePath        string
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	BroadcastAddr       string
	QueueConcurrency    int
	MaxAttempts         int
	TombstoneRetention  time.Duration
	Blob                *blob.ProviderConfig
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "pawkit.db"
	c.SyncInterval = time.Minute
	c.OnlineCheckInterval = 15 * time.Second
	c.BroadcastAddr = "127.0.0.1:8787"
	c.QueueConcurrency = 3
	c.MaxAttempts = 8
	c.TombstoneRetention = 30 * 24 * time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
