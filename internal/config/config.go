// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	Port    string
	URLBase string

	DataDir      string
	DatabaseFile string

	LogLevel  string
	LogFormat string

	MediainfoBin    string
	MetadataWorkers int

	UploadRatePerSec float64
	UploadBurst      int
	MaxUploadMB      int
}

// Load reads configuration from the environment, after merging in a local
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8095"),
		URLBase:          getEnv("URL_BASE", "http://127.0.0.1:8095"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		DatabaseFile:     getEnv("DATABASE_FILE", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		MediainfoBin:     getEnv("MEDIAINFO_BIN", "mediainfo"),
		MetadataWorkers:  getEnvInt("METADATA_WORKERS", 4),
		UploadRatePerSec: getEnvFloat("UPLOAD_RATE_PER_SEC", 1),
		UploadBurst:      getEnvInt("UPLOAD_BURST", 5),
		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 4096),
	}
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = filepath.Join(cfg.DataDir, "clapshot.sqlite")
	}

	if cfg.URLBase == "" {
		return nil, fmt.Errorf("URL_BASE is required")
	}
	if cfg.MetadataWorkers < 1 {
		return nil, fmt.Errorf("METADATA_WORKERS must be at least 1")
	}
	if cfg.MaxUploadMB < 1 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be at least 1")
	}

	return cfg, nil
}

// VideosDir is where ingested videos live, one directory per video hash.
func (c *Config) VideosDir() string { return filepath.Join(c.DataDir, "videos") }

// UploadDir is the staging area for in-flight uploads.
func (c *Config) UploadDir() string { return filepath.Join(c.DataDir, "upload") }

// RejectDir is where files that failed ingestion are parked for inspection.
func (c *Config) RejectDir() string { return filepath.Join(c.DataDir, "rejected") }

// EnsureDirs creates the data directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.VideosDir(), c.UploadDir(), c.RejectDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %q: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
