package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. VISIOND_DOWNLOAD_MAX_ATTEMPTS.
const EnvPrefix = "VISIOND"

// NewViper returns a viper instance reading VISIOND_* environment variables
// for the dotted keys used by Overlay.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`, `.`, `_`))
	v.AutomaticEnv()
	return v
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment. Variables
// already set are left alone. An empty path is a no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

type override struct {
	key   string
	apply func(v *viper.Viper, c *Config)
}

func str(key string, field func(*Config) *string) override {
	return override{key, func(v *viper.Viper, c *Config) { *field(c) = v.GetString(key) }}
}

func integer(key string, field func(*Config) *int) override {
	return override{key, func(v *viper.Viper, c *Config) { *field(c) = v.GetInt(key) }}
}

func float(key string, field func(*Config) *float64) override {
	return override{key, func(v *viper.Viper, c *Config) { *field(c) = v.GetFloat64(key) }}
}

func boolean(key string, field func(*Config) *bool) override {
	return override{key, func(v *viper.Viper, c *Config) { *field(c) = v.GetBool(key) }}
}

func list(key string, field func(*Config) *[]string) override {
	return override{key, func(v *viper.Viper, c *Config) { *field(c) = splitList(v.GetStringSlice(key)) }}
}

var overrides = []override{
	str("addr", func(c *Config) *string { return &c.Addr }),
	str("cache_dir", func(c *Config) *string { return &c.CacheDir }),
	str("registry_url", func(c *Config) *string { return &c.RegistryURL }),
	str("inference_url", func(c *Config) *string { return &c.InferenceURL }),
	str("inference_api_key", func(c *Config) *string { return &c.InferenceAPIKey }),
	integer("target_fps", func(c *Config) *int { return &c.TargetFPS }),
	float("confidence_threshold", func(c *Config) *float64 { return &c.ConfidenceThreshold }),
	str("log_level", func(c *Config) *string { return &c.LogLevel }),
	list("debug_tasks", func(c *Config) *[]string { return &c.DebugTasks }),
	integer("null_frame_delay_ms", func(c *Config) *int { return &c.NullFrameDelayMS }),
	integer("loading_coalesce_ms", func(c *Config) *int { return &c.LoadingCoalesceMS }),
	boolean("require_cached_models", func(c *Config) *bool { return &c.RequireCachedModels }),

	str("camera.dir", func(c *Config) *string { return &c.Camera.Dir }),
	integer("camera.width", func(c *Config) *int { return &c.Camera.Width }),
	integer("camera.height", func(c *Config) *int { return &c.Camera.Height }),

	integer("download.max_attempts", func(c *Config) *int { return &c.Download.MaxAttempts }),
	integer("download.window_minutes", func(c *Config) *int { return &c.Download.WindowMinutes }),
	integer("download.cooldown_minutes", func(c *Config) *int { return &c.Download.CooldownMinutes }),
	str("download.state_path", func(c *Config) *string { return &c.Download.StatePath }),
	integer("download.retry_max_elapsed_seconds", func(c *Config) *int { return &c.Download.RetryMaxElapsedSeconds }),
	integer("download.entry_workers", func(c *Config) *int { return &c.Download.EntryWorkers }),

	str("storage.type", func(c *Config) *string { return &c.Storage.Type }),
	str("storage.s3.bucket", func(c *Config) *string { return &c.Storage.S3.Bucket }),
	str("storage.s3.region", func(c *Config) *string { return &c.Storage.S3.Region }),
	str("storage.s3.endpoint", func(c *Config) *string { return &c.Storage.S3.Endpoint }),
	str("storage.s3.access_key", func(c *Config) *string { return &c.Storage.S3.AccessKey }),
	str("storage.s3.secret_key", func(c *Config) *string { return &c.Storage.S3.SecretKey }),
	str("storage.s3.prefix", func(c *Config) *string { return &c.Storage.S3.Prefix }),

	str("registry.dir", func(c *Config) *string { return &c.Registry.Dir }),
	str("registry.base_url", func(c *Config) *string { return &c.Registry.BaseURL }),
	str("registry.s3_bucket", func(c *Config) *string { return &c.Registry.S3Bucket }),
	list("registry.keys", func(c *Config) *[]string { return &c.Registry.Keys }),

	boolean("cors.enabled", func(c *Config) *bool { return &c.CORS.Enabled }),
	list("cors.origins", func(c *Config) *[]string { return &c.CORS.Origins }),
	list("cors.methods", func(c *Config) *[]string { return &c.CORS.Methods }),
	list("cors.headers", func(c *Config) *[]string { return &c.CORS.Headers }),
}

// Overlay copies every key set in v (bound flag, environment or explicit
// Set) onto cfg.
func Overlay(v *viper.Viper, cfg *Config) {
	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(v, cfg)
		}
	}
}

// Resolve loads the file named by the "config" key if any, then applies
// overrides and defaults.
func Resolve(v *viper.Viper) (Config, error) {
	var cfg Config
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	Overlay(v, &cfg)
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// splitList accepts both repeated values and comma-separated strings.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
