package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	CacheDir string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	// RegistryURL is the remote model registry. Empty serves the local registry.
	RegistryURL     string `json:"registry_url" yaml:"registry_url" toml:"registry_url"`
	InferenceURL    string `json:"inference_url" yaml:"inference_url" toml:"inference_url"`
	InferenceAPIKey string `json:"inference_api_key" yaml:"inference_api_key" toml:"inference_api_key"`
	TargetFPS       int    `json:"target_fps" yaml:"target_fps" toml:"target_fps"`
	// ConfidenceThreshold is the fusion score cut-off in percent.
	ConfidenceThreshold float64  `json:"confidence_threshold" yaml:"confidence_threshold" toml:"confidence_threshold"`
	LogLevel            string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	DebugTasks          []string `json:"debug_tasks" yaml:"debug_tasks" toml:"debug_tasks"`
	NullFrameDelayMS    int      `json:"null_frame_delay_ms" yaml:"null_frame_delay_ms" toml:"null_frame_delay_ms"`
	LoadingCoalesceMS   int      `json:"loading_coalesce_ms" yaml:"loading_coalesce_ms" toml:"loading_coalesce_ms"`
	RequireCachedModels bool     `json:"require_cached_models" yaml:"require_cached_models" toml:"require_cached_models"`

	Camera   CameraConfig   `json:"camera" yaml:"camera" toml:"camera"`
	Download DownloadConfig `json:"download" yaml:"download" toml:"download"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" toml:"storage"`
	Registry RegistryConfig `json:"registry" yaml:"registry" toml:"registry"`
	CORS     CORSConfig     `json:"cors" yaml:"cors" toml:"cors"`
}

// CameraConfig selects the directory replayed as the camera.
type CameraConfig struct {
	Dir    string `json:"dir" yaml:"dir" toml:"dir"`
	Width  int    `json:"width" yaml:"width" toml:"width"`
	Height int    `json:"height" yaml:"height" toml:"height"`
}

// DownloadConfig tunes the model downloader and its rate limit.
type DownloadConfig struct {
	MaxAttempts            int    `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	WindowMinutes          int    `json:"window_minutes" yaml:"window_minutes" toml:"window_minutes"`
	CooldownMinutes        int    `json:"cooldown_minutes" yaml:"cooldown_minutes" toml:"cooldown_minutes"`
	StatePath              string `json:"state_path" yaml:"state_path" toml:"state_path"`
	RetryMaxElapsedSeconds int    `json:"retry_max_elapsed_seconds" yaml:"retry_max_elapsed_seconds" toml:"retry_max_elapsed_seconds"`
	EntryWorkers           int    `json:"entry_workers" yaml:"entry_workers" toml:"entry_workers"`
}

// StorageConfig selects the cache backend: "fs" (default) or "s3".
type StorageConfig struct {
	Type string   `json:"type" yaml:"type" toml:"type"`
	S3   S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

type S3Config struct {
	Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Region    string `json:"region" yaml:"region" toml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key" toml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
	Prefix    string `json:"prefix" yaml:"prefix" toml:"prefix"`
}

// RegistryConfig configures the registry this process serves at /registry.
// S3Bucket wins over Dir when both are set.
type RegistryConfig struct {
	Dir      string   `json:"dir" yaml:"dir" toml:"dir"`
	BaseURL  string   `json:"base_url" yaml:"base_url" toml:"base_url"`
	S3Bucket string   `json:"s3_bucket" yaml:"s3_bucket" toml:"s3_bucket"`
	Keys     []string `json:"keys" yaml:"keys" toml:"keys"`
}

// CORSConfig is opt-in.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var format string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		format, err = "yaml", yaml.Unmarshal(b, &cfg)
	case ".json":
		format, err = "json", json.Unmarshal(b, &cfg)
	case ".toml":
		format, err = "toml", toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s config %s: %w", format, path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.CacheDir == "" {
		c.CacheDir = "~/.cache/visiond"
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = 30
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 50
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NullFrameDelayMS <= 0 {
		c.NullFrameDelayMS = 500
	}
	if c.LoadingCoalesceMS <= 0 {
		c.LoadingCoalesceMS = 500
	}
	d := &c.Download
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
	if d.WindowMinutes <= 0 {
		d.WindowMinutes = 60
	}
	if d.CooldownMinutes <= 0 {
		d.CooldownMinutes = 5
	}
	if d.RetryMaxElapsedSeconds <= 0 {
		d.RetryMaxElapsedSeconds = 60
	}
	if d.EntryWorkers <= 0 {
		d.EntryWorkers = 4
	}
	if c.Storage.Type == "" {
		c.Storage.Type = StorageFS
	}
}

// Storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Validate rejects combinations ApplyDefaults cannot repair.
func (c Config) Validate() error {
	switch c.Storage.Type {
	case StorageFS, "":
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence_threshold must be a percentage, got %v", c.ConfidenceThreshold)
	}
	return nil
}

func (c Config) NullFrameDelay() time.Duration {
	return time.Duration(c.NullFrameDelayMS) * time.Millisecond
}

func (c Config) LoadingCoalesce() time.Duration {
	return time.Duration(c.LoadingCoalesceMS) * time.Millisecond
}

func (d DownloadConfig) Window() time.Duration {
	return time.Duration(d.WindowMinutes) * time.Minute
}

func (d DownloadConfig) Cooldown() time.Duration {
	return time.Duration(d.CooldownMinutes) * time.Minute
}

func (d DownloadConfig) RetryMaxElapsed() time.Duration {
	return time.Duration(d.RetryMaxElapsedSeconds) * time.Second
}
