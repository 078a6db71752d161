package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/blob"
	"github.com/TheVisher/pawkit-sync/internal/flagx"
	"github.com/TheVisher/pawkit-sync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify intervals either as strings like
// "15s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	DatabasePath        string         `json:"database_path"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	BroadcastAddr       string         `json:"broadcast_addr"`
	QueueConcurrency    int                  `json:"queue_concurrency"`
	MaxAttempts         int                  `json:"max_attempts"`
	TombstoneRetention  timex.Duration       `json:"tombstone_retention"`
	Blob                *blob.ProviderConfig `json:"blob"`
}

// parseJson overlays Config with values loaded from a JSON file selected
// via the -c/-config flags. Empty JSON fields leave the current value in
// place, so a partial file only overrides what it names.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.BroadcastAddr != "" {
		cfg.BroadcastAddr = jc.BroadcastAddr
	}
	if jc.QueueConcurrency != 0 {
		cfg.QueueConcurrency = jc.QueueConcurrency
	}
	if jc.MaxAttempts != 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	if jc.TombstoneRetention.Duration != 0 {
		cfg.TombstoneRetention = time.Duration(jc.TombstoneRetention.Duration)
	}
	if jc.Blob != nil {
		cfg.Blob = jc.Blob
	}
}
