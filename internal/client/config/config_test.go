package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "cradlesync.db", c.DBPath)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 5*time.Minute, c.SyncInterval)
	assert.Equal(t, uint64(5), c.RetryMaxRetries)
	assert.Equal(t, []string{"districts", "facilities"}, c.Lookups)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTemp(t, "cfg.yaml", "server_url: https://file.example\nsync_interval: 2m\n")
	os.Args = []string{"testbin", "-c", path, "-a", "https://flag.example"}

	cfg := LoadConfig()

	assert.Equal(t, "https://flag.example", cfg.ServerURL)
	assert.Equal(t, 2*time.Minute, cfg.SyncInterval)
}
