package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8095", cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("./data", "clapshot.sqlite"), cfg.DatabaseFile)
	assert.Equal(t, "mediainfo", cfg.MediainfoBin)
	assert.Equal(t, 4, cfg.MetadataWorkers)
	assert.Equal(t, 4096, cfg.MaxUploadMB)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_DIR", "/srv/clapshot")
	t.Setenv("METADATA_WORKERS", "8")
	t.Setenv("UPLOAD_RATE_PER_SEC", "2.5")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/srv/clapshot", cfg.DataDir)
	assert.Equal(t, filepath.Join("/srv/clapshot", "clapshot.sqlite"), cfg.DatabaseFile)
	assert.Equal(t, 8, cfg.MetadataWorkers)
	assert.InDelta(t, 2.5, cfg.UploadRatePerSec, 0.001)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsInvalidWorkerCount(t *testing.T) {
	t.Setenv("METADATA_WORKERS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestDerivedDirectories(t *testing.T) {
	cfg := &Config{DataDir: "/srv/clapshot"}

	assert.Equal(t, "/srv/clapshot/videos", cfg.VideosDir())
	assert.Equal(t, "/srv/clapshot/upload", cfg.UploadDir())
	assert.Equal(t, "/srv/clapshot/rejected", cfg.RejectDir())
}

func TestEnsureDirs(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	require.NoError(t, cfg.EnsureDirs())

	for _, dir := range []string{cfg.VideosDir(), cfg.UploadDir(), cfg.RejectDir()} {
		assert.DirExists(t, dir)
	}
}
