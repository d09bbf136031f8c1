package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "studio.yaml")
	yml := `
log_level: debug
pools:
  light: 3
  heavy: 2
  heavy_timeout: 45s
limits:
  max_pixels: 4000000
ocr:
  language: deu
joblog:
  driver: sqlite
  dsn: "file::memory:"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("IMAGE_STUDIO_HEAVY_WORKERS", "5")
	t.Setenv("IMAGE_STUDIO_S3_FORCE_PATH_STYLE", "true")
	t.Setenv("IMAGE_STUDIO_MAX_PIXELS", "25000000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Pools.Light)
	assert.Equal(t, 5, cfg.Pools.Heavy)
	assert.Equal(t, 45*time.Second, cfg.Pools.HeavyTimeout)
	assert.Equal(t, int64(25000000), cfg.Limits.MaxPixels)
	assert.Equal(t, "deu", cfg.OCR.Language)
	assert.Equal(t, "sqlite", cfg.JobLog.Driver)
	assert.True(t, cfg.Storage.ForcePathStyle)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Pools.Light = -1
	cfg.Storage.Enabled = true
	cfg.JobLog.Driver = "postgres"
	cfg.Limits.MaxPixels = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "pools")
	assert.Contains(t, msg, "storage.bucket")
	assert.Contains(t, msg, "joblog.driver")
	assert.Contains(t, msg, "limits.max_pixels")
}

func TestPoolSizesFallBackToNumCPU(t *testing.T) {
	var p Pools
	assert.Equal(t, 2*runtime.NumCPU(), p.LightWorkers())
	assert.Equal(t, runtime.NumCPU(), p.HeavyWorkers())

	p = Pools{Light: 7, Heavy: 1}
	assert.Equal(t, 7, p.LightWorkers())
	assert.Equal(t, 1, p.HeavyWorkers())
}
