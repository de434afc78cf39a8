// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores the application configuration. Environment variables form
// the base; an optional config.yaml overlays it for values that are awkward
// to keep in the environment.
type Config struct {
	Port      string `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	StaticDir string `yaml:"static_dir"`
	LogDir    string `yaml:"log_dir"`
	DebugMode bool   `yaml:"debug_mode"`

	// Upstream generative API. The credential itself is caller-supplied per
	// run and never lives in configuration.
	GeminiBaseURL string `yaml:"gemini_base_url"`

	// Where the stitching coordinator uploads clips. Defaults to this
	// process's own concat endpoints.
	StitchServerURL string `yaml:"stitch_server_url"`

	// Wait applied when a rate-limit response carries no retry hint. The
	// upstream service does not document a safe default, so this is
	// deliberately configurable.
	RateLimitDefaultWait time.Duration `yaml:"rate_limit_default_wait"`

	// Pause between scenes to avoid bursting the remote services.
	InterSceneDelay time.Duration `yaml:"inter_scene_delay"`

	// Target clip length per scene, seconds.
	ClipDurationSec int `yaml:"clip_duration_sec"`
}

// Load builds the configuration from the environment plus an optional YAML
// file named by CONFIG_FILE (default "config.yaml" when present).
func Load() (*Config, error) {
	// .env is optional, local development only
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		DataDir:              getEnvPath("DATA_DIR", "data"),
		StaticDir:            getEnv("STATIC_DIR", "static"),
		LogDir:               getEnvPath("LOG_DIR", "logs"),
		DebugMode:            getEnvBool("DEBUG_MODE", true),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		StitchServerURL:      getEnv("STITCH_SERVER_URL", ""),
		RateLimitDefaultWait: getEnvDuration("RATE_LIMIT_DEFAULT_WAIT", 10*time.Second),
		InterSceneDelay:      getEnvDuration("INTER_SCENE_DELAY", time.Second),
		ClipDurationSec:      getEnvInt("CLIP_DURATION_SEC", 8),
	}

	if err := cfg.applyYAML(getEnv("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}

	if cfg.StitchServerURL == "" {
		cfg.StitchServerURL = "http://localhost:" + cfg.Port
	}

	return cfg, nil
}

// UploadDir is where raw clip uploads land.
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// OutputDir is where concatenated final videos land.
func (c *Config) OutputDir() string {
	return filepath.Join(c.DataDir, "output")
}

// EnsureDirs creates the directories the pipeline writes into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.UploadDir(), c.OutputDir(), c.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// applyYAML overlays values from a YAML file when the file exists. A missing
// file is not an error.
func (c *Config) applyYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("warning: failed to create directory %s: %v\n", path, err)
		}
	}
	return path
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
