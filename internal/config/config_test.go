package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "relayqueue", cfg.Mongo.Database)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[http]
addr = ":9999"

[mongo]
database = "custom"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTP.Addr)
	require.Equal(t, "custom", cfg.Mongo.Database)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[http]
addr = ":9999"
`), 0o644))

	t.Setenv("RELAYQUEUE_HTTP_ADDR", ":7777")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.HTTP.Addr)
}

func TestDevFromEnv(t *testing.T) {
	t.Setenv("RELAYQUEUE_DEV", "true")
	require.True(t, DevFromEnv())

	t.Setenv("RELAYQUEUE_DEV", "")
	require.False(t, DevFromEnv())
}
