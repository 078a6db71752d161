package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJson(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"server_url": "https://sync.pawkit.test",
		"sync_interval": "45s",
		"online_check_interval": "5s",
		"queue_concurrency": 5,
		"tombstone_retention": "168h"
	}`), 0o600))

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)
	os.Args = []string{"cmd", "-c", file}

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NotPanics(t, func() { parseJson(cfg) })

	assert.Equal(t, "https://sync.pawkit.test", cfg.ServerURL)
	assert.Equal(t, 45*time.Second, cfg.SyncInterval)
	assert.Equal(t, 5*time.Second, cfg.OnlineCheckInterval)
	assert.Equal(t, 5, cfg.QueueConcurrency)
	assert.Equal(t, 168*time.Hour, cfg.TombstoneRetention)
	// fields the file omits keep their defaults
	assert.Equal(t, "pawkit.db", cfg.DatabasePath)
	assert.Equal(t, 8, cfg.MaxAttempts)
}

func TestParseJsonMissingFilePanics(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)
	os.Args = []string{"cmd", "-c", "does-not-exist.json"}

	cfg := &Config{}
	cfg.LoadDefaults()
	require.Panics(t, func() { parseJson(cfg) })
}
