package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is t.Chdir for toolchains predating Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8765", cfg.Listen)
	assert.Equal(t, 1, cfg.SerializeDepth)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.ConnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectDelay)
}

func TestLoadUsesDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LUADBG_LISTEN", "127.0.0.1:9000")
	t.Setenv("LUADBG_LOG_LEVEL", "debug")
	t.Setenv("LUADBG_SERIALIZE_DEPTH", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.SerializeDepth)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luadbg.yaml")
	content := "listen: 127.0.0.1:7000\nconnect_attempts: 5\nconnect_delay: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, 5, cfg.ConnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.ConnectDelay)
	// untouched keys keep their defaults
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
