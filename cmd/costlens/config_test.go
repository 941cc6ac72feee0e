package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("costlens", flag.ContinueOnError)
	return parseConfig(fs, args)
}

func TestParseConfig_Defaults(t *testing.T) {
	config, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, ":8080", config.ListenAddr)
	assert.Equal(t, "data.db", config.DBPath)
	assert.Equal(t, int64(64<<20), config.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, config.ShutdownTimeout)
	assert.Equal(t, "info", config.LogLevel)
}

func TestParseConfig_Flags(t *testing.T) {
	config, err := parse(t,
		"-listen", ":9000",
		"-db", "/tmp/costs.db",
		"-max-upload-bytes", "1048576",
		"-shutdown-timeout", "5s",
		"-log-level", "debug",
	)
	require.NoError(t, err)
	assert.Equal(t, ":9000", config.ListenAddr)
	assert.Equal(t, "/tmp/costs.db", config.DBPath)
	assert.Equal(t, int64(1048576), config.MaxUploadBytes)
	assert.Equal(t, 5*time.Second, config.ShutdownTimeout)
	assert.Equal(t, "debug", config.LogLevel)
}

func TestParseConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: \":7000\"\ndb_path: file.db\nlog_level: warn\n"), 0o600))

	config, err := parse(t, "-config", path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", config.ListenAddr)
	assert.Equal(t, "file.db", config.DBPath)
	assert.Equal(t, "warn", config.LogLevel)
	// Unset file keys keep their defaults.
	assert.Equal(t, int64(64<<20), config.MaxUploadBytes)
}

func TestParseConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":7000\"\nlog_level: warn\n"), 0o600))

	config, err := parse(t, "-config", path, "-listen", ":9999")
	require.NoError(t, err)
	assert.Equal(t, ":9999", config.ListenAddr)
	assert.Equal(t, "warn", config.LogLevel)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := parse(t, "-max-upload-bytes", "0")
	require.Error(t, err)

	_, err = parse(t, "-config", "/nonexistent/config.yaml")
	require.Error(t, err)
}
