package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"visiond/internal/config"
)

// cli carries state resolved by the root command for its subcommands.
type cli struct {
	v   *viper.Viper
	cfg config.Config
	log zerolog.Logger
	out io.Writer
}

// flagKeys binds flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":                  "addr",
	"cache-dir":             "cache_dir",
	"registry-url":          "registry_url",
	"inference-url":         "inference_url",
	"target-fps":            "target_fps",
	"confidence-threshold":  "confidence_threshold",
	"log-level":             "log_level",
	"debug-tasks":           "debug_tasks",
	"require-cached-models": "require_cached_models",
	"camera-dir":            "camera.dir",
	"registry-dir":          "registry.dir",
	"storage-type":          "storage.type",
	"s3-bucket":             "storage.s3.bucket",
	"cors-enabled":          "cors.enabled",
	"cors-origins":          "cors.origins",
}

func newRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *cli) {
	c := &cli{v: config.NewViper(), out: os.Stdout}
	root := &cobra.Command{
		Use:           "visiond",
		Short:         "Camera-driven vision and speech task server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (.yaml, .json or .toml)")
	pf.String("env-file", "", "Load VISIOND_* variables from a dotenv file first")
	pf.String("log-format", "console", "Log output: console|json")
	pf.String("addr", ":8080", "HTTP listen address")
	pf.String("cache-dir", "~/.cache/visiond", "Model cache directory (fs storage)")
	pf.String("registry-url", "", "Remote model registry URL (empty uses the registry served by this process)")
	pf.String("inference-url", "", "Remote inference endpoint base URL")
	pf.Int("target-fps", 30, "Frame capture throttle")
	pf.Float64("confidence-threshold", 50, "Detection score cut-off for distance fusion, in percent")
	pf.String("log-level", "info", "Log level: debug|info|warn|error")
	pf.StringSlice("debug-tasks", nil, "Tasks whose workers emit log messages")
	pf.Bool("require-cached-models", false, "Refuse to load tasks whose models are not cached")
	pf.String("camera-dir", "", "Directory of images replayed as the camera")
	pf.String("registry-dir", "", "Serve a model registry from this directory")
	pf.String("storage-type", "fs", "Cache backend: fs|s3")
	pf.String("s3-bucket", "", "Cache bucket for s3 storage")
	pf.Bool("cors-enabled", false, "Enable CORS")
	pf.StringSlice("cors-origins", nil, "Allowed CORS origins")
	bindFlags(c.v, pf)

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		c.out = cmd.OutOrStdout()
		if err := config.LoadEnvFile(c.v.GetString("env-file")); err != nil {
			return err
		}
		cfg, err := config.Resolve(c.v)
		if err != nil {
			return err
		}
		c.cfg = cfg
		c.log = newLogger(cfg.LogLevel, c.v.GetString("log-format"), cmd.ErrOrStderr())
		return nil
	}

	root.AddCommand(newServeCmd(c), newModelsCmd(c))
	return root, c
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for _, name := range []string{"config", "env-file", "log-format"} {
		_ = v.BindPFlag(name, fs.Lookup(name))
	}
	for name, key := range flagKeys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
