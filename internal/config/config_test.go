package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timetable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Empty(t, cfg.Guest)
	assert.Equal(t, uint32(256), cfg.Wasm.MemoryPages)
	assert.False(t, cfg.Wasm.Debug)
	assert.Empty(t, cfg.Wasm.CacheDir)
	assert.Equal(t, 100, cfg.Wasm.MaxInstances)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
guest: ./guests/bk
log_level: debug
format: json
wasm:
  memory_pages: 32
  debug: true
  cache_dir: /tmp/timetable-cache
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "./guests/bk", cfg.Guest)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, uint32(32), cfg.Wasm.MemoryPages)
	assert.True(t, cfg.Wasm.Debug)
	assert.Equal(t, "/tmp/timetable-cache", cfg.Wasm.CacheDir)
	// Unset keys keep their defaults.
	assert.Equal(t, 100, cfg.Wasm.MaxInstances)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	t.Setenv("TIMETABLE_LOG_LEVEL", "warn")
	t.Setenv("TIMETABLE_WASM_MEMORY_PAGES", "8")
	t.Setenv("TIMETABLE_GUEST", "/opt/guest.wasm")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, uint32(8), cfg.Wasm.MemoryPages)
	assert.Equal(t, "/opt/guest.wasm", cfg.Guest)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "missing.yaml")},
		{name: "invalid yaml", content: "log_level: [debug\n"},
		{name: "unknown log level", content: "log_level: verbose\n"},
		{name: "unknown format", content: "format: xml\n"},
		{name: "negative instances", content: "wasm:\n  max_instances: -1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := tc.path
			if path == "" {
				path = writeConfig(t, tc.content)
			}
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}
