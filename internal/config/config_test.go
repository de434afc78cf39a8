// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadInTempDir(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "config.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadInTempDir(t)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.RateLimitDefaultWait)
	assert.Equal(t, time.Second, cfg.InterSceneDelay)
	assert.Equal(t, 8, cfg.ClipDurationSec)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.GeminiBaseURL)
	// stitching defaults to this process's own endpoints
	assert.Equal(t, "http://localhost:3000", cfg.StitchServerURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("RATE_LIMIT_DEFAULT_WAIT", "30s")
	t.Setenv("CLIP_DURATION_SEC", "6")
	cfg := loadInTempDir(t)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RateLimitDefaultWait)
	assert.Equal(t, 6, cfg.ClipDurationSec)
	assert.Equal(t, "http://localhost:8080", cfg.StitchServerURL)
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("port: \"9000\"\nclip_duration_sec: 4\n"), 0644))

	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("CONFIG_FILE", yamlPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 4, cfg.ClipDurationSec)
}

func TestEnsureDirs(t *testing.T) {
	cfg := loadInTempDir(t)
	require.NoError(t, cfg.EnsureDirs())

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir(), cfg.OutputDir(), cfg.LogDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}
