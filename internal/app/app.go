// Package app wires the session, the model cache, the registry and the
// inference client into the service served over HTTP and used by the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"visiond/internal/blobs"
	"visiond/internal/camera"
	"visiond/internal/common/fsutil"
	"visiond/internal/config"
	"visiond/internal/events"
	"visiond/internal/frames"
	"visiond/internal/inference"
	"visiond/internal/metrics"
	"visiond/internal/modelcache"
	"visiond/internal/orchestrator"
	"visiond/internal/registry"
	"visiond/internal/worker"
)

// eventBuffer is the per-subscriber queue of the event broadcaster.
const eventBuffer = 64

// App owns every long-lived component of one process.
type App struct {
	cfg config.Config
	log zerolog.Logger

	session *orchestrator.Session
	blobs   *blobs.Store
	broker  *events.Broadcaster
	metrics *metrics.Domain

	cache      *modelcache.Cache
	validator  *modelcache.Validator
	progress   *modelcache.Progress
	downloader *modelcache.Downloader
	limiter    *modelcache.RateLimiter

	source     registry.Source
	archives   *registry.DirSource
	httpClient *http.Client

	dlMu        sync.Mutex
	downloading bool
	dlWG        sync.WaitGroup
}

type options struct {
	logger     zerolog.Logger
	registerer prometheus.Registerer
	engine     inference.Engine
	store      modelcache.Store
	source     registry.Source
	httpClient *http.Client
	now        func() time.Time
}

// OptionFunc customizes New.
type OptionFunc func(*options)

func WithLogger(l zerolog.Logger) OptionFunc { return func(o *options) { o.logger = l } }

// WithRegisterer registers domain metrics with r instead of the default registry.
func WithRegisterer(r prometheus.Registerer) OptionFunc {
	return func(o *options) { o.registerer = r }
}

// WithEngine replaces the remote inference client.
func WithEngine(e inference.Engine) OptionFunc { return func(o *options) { o.engine = e } }

// WithStore replaces the cache backend selected by the configuration.
func WithStore(s modelcache.Store) OptionFunc { return func(o *options) { o.store = s } }

// WithRegistrySource replaces the registry served at /registry.
func WithRegistrySource(s registry.Source) OptionFunc { return func(o *options) { o.source = s } }

// WithHTTPClient is used for registry requests and archive downloads.
func WithHTTPClient(c *http.Client) OptionFunc { return func(o *options) { o.httpClient = c } }

// WithClock overrides time for the rate limiter and the session.
func WithClock(now func() time.Time) OptionFunc { return func(o *options) { o.now = now } }

// New builds an App from cfg. cfg is expected to have defaults applied.
func New(ctx context.Context, cfg config.Config, opts ...OptionFunc) (*App, error) {
	o := options{
		logger:     zerolog.Nop(),
		registerer: prometheus.DefaultRegisterer,
		httpClient: &http.Client{Timeout: 0},
		now:        time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	a := &App{
		cfg:        cfg,
		log:        o.logger.With().Str("component", "app").Logger(),
		blobs:      blobs.NewStore(),
		broker:     events.NewBroadcaster(eventBuffer),
		metrics:    metrics.NewDomain(o.registerer),
		httpClient: o.httpClient,
	}
	publisher := events.Multi{a.broker, a.metrics, events.LogPublisher{Logger: o.logger}}

	cacheDir, err := fsutil.ExpandHome(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	store := o.store
	if store == nil {
		if store, err = newStore(ctx, cfg, cacheDir); err != nil {
			return nil, err
		}
	}
	a.cache = modelcache.NewCache(store, o.logger)
	a.validator = modelcache.NewValidator(a.cache)
	a.progress = modelcache.NewProgress()
	a.downloader = modelcache.NewDownloader(a.cache, a.progress, modelcache.DownloaderConfig{
		Client:          o.httpClient,
		EntryWorkers:    cfg.Download.EntryWorkers,
		RetryMaxElapsed: cfg.Download.RetryMaxElapsed(),
		Publisher:       publisher,
		Logger:          o.logger,
	})
	statePath := cfg.Download.StatePath
	if statePath == "" {
		statePath = filepath.Join(cacheDir, "download_attempts.json")
	}
	if statePath, err = fsutil.ExpandHome(statePath); err != nil {
		return nil, err
	}
	a.limiter = modelcache.NewRateLimiter(modelcache.RateLimitConfig{
		MaxAttempts: cfg.Download.MaxAttempts,
		Window:      cfg.Download.Window(),
		Cooldown:    cfg.Download.Cooldown(),
		StatePath:   statePath,
		Now:         o.now,
		Logger:      o.logger.With().Str("component", "ratelimit").Logger(),
	})

	a.source = o.source
	if a.source == nil {
		if a.source, err = a.newRegistrySource(ctx, o.logger); err != nil {
			return nil, err
		}
	}
	if ds, ok := a.source.(*registry.DirSource); ok {
		a.archives = ds
	}

	engine := o.engine
	if engine == nil {
		engine = inference.NewRemote(inference.RemoteConfig{
			BaseURL: cfg.InferenceURL,
			APIKey:  cfg.InferenceAPIKey,
			Logger:  o.logger,
		})
	}
	var loader inference.Loader = engine
	if cfg.RequireCachedModels {
		loader = inference.CacheGatedLoader{Next: engine, Checker: a.validator}
	}

	fm := frames.NewManager(cfg.TargetFPS, frames.WithObserver(a.metrics), frames.WithLogger(o.logger))
	debug := make(map[worker.Kind]bool, len(cfg.DebugTasks))
	for _, name := range cfg.DebugTasks {
		if k, ok := worker.ParseKind(strings.TrimSpace(name)); ok {
			debug[k] = true
		} else {
			a.log.Warn().Str("task", name).Msg("ignoring unknown debug task")
		}
	}
	a.session = orchestrator.NewSession(orchestrator.SessionConfig{
		Frames: fm,
		Factory: func(kind worker.Kind) (worker.Pipeline, error) {
			p, ok := worker.NewPipeline(kind, loader, engine, a.blobs)
			if !ok {
				return nil, orchestrator.ErrUnknownTask(string(kind))
			}
			return p, nil
		},
		Worker:              worker.Options{NullFrameDelay: cfg.NullFrameDelay()},
		DebugTasks:          debug,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		LoadingCoalesce:     cfg.LoadingCoalesce(),
		Publisher:           publisher,
		Observer:            a.metrics,
		Revoke:              a.blobs.Revoke,
		Logger:              o.logger,
		Now:                 o.now,
	})

	if cfg.Camera.Dir != "" {
		src, err := camera.NewFileSource(cfg.Camera.Dir,
			camera.WithSize(cfg.Camera.Width, cfg.Camera.Height),
			camera.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("camera: %w", err)
		}
		a.session.AttachCamera(src.Capture, src)
	}
	return a, nil
}

func newStore(ctx context.Context, cfg config.Config, cacheDir string) (modelcache.Store, error) {
	if cfg.Storage.Type != config.StorageS3 {
		return modelcache.NewFSStore(cacheDir)
	}
	sc := s3Config(cfg.Storage.S3)
	client, err := modelcache.NewS3Client(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return modelcache.NewS3Store(client, sc)
}

func s3Config(c config.S3Config) modelcache.S3Config {
	return modelcache.S3Config{
		Bucket:    c.Bucket,
		Region:    c.Region,
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Prefix:    c.Prefix,
	}
}

// newRegistrySource returns nil when this process serves no registry.
func (a *App) newRegistrySource(ctx context.Context, log zerolog.Logger) (registry.Source, error) {
	rc := a.cfg.Registry
	switch {
	case rc.S3Bucket != "":
		sc := s3Config(a.cfg.Storage.S3)
		sc.Bucket = rc.S3Bucket
		client, err := modelcache.NewS3Client(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("registry s3 client: %w", err)
		}
		return registry.NewS3Source(client, rc.S3Bucket, rc.Keys, log)
	case rc.Dir != "":
		return registry.NewDirSource(rc.Dir, registryBaseURL(rc.BaseURL, a.cfg.Addr), rc.Keys, log)
	}
	return nil, nil
}

// registryBaseURL defaults to the local listen address.
func registryBaseURL(base, addr string) string {
	if base != "" {
		return base
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// Session exposes the orchestrator session.
func (a *App) Session() *orchestrator.Session { return a.session }

// Progress exposes the downloader progress so callers can attach sinks.
func (a *App) Progress() *modelcache.Progress { return a.progress }

// Close stops every worker, waits for a running download batch and closes
// event subscriptions.
func (a *App) Close() {
	a.session.ShutdownAll()
	a.dlWG.Wait()
	a.broker.Close()
}
