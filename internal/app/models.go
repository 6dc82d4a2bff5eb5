package app

import (
	"context"
	"fmt"
	"sort"

	"visiond/internal/modelcache"
	"visiond/internal/registry"
	"visiond/pkg/types"
)

// modelKeys lists the keys this process manages.
func (a *App) modelKeys() []string {
	if len(a.cfg.Registry.Keys) > 0 {
		return a.cfg.Registry.Keys
	}
	return registry.DefaultKeys
}

func (a *App) knownKey(key string) bool {
	for _, k := range a.modelKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// RemoteInfo reads the model registry: the configured registry URL when
// set, the registry served by this process otherwise.
func (a *App) RemoteInfo(ctx context.Context) (map[string]types.RemoteModelInfo, error) {
	if a.cfg.RegistryURL != "" {
		return modelcache.FetchRemoteInfo(ctx, a.httpClient, a.cfg.RegistryURL)
	}
	if a.source != nil {
		return a.source.Resolve(ctx)
	}
	return nil, errNotConfigured("model registry")
}

// Models reports the cache state of every managed key. When the registry
// cannot be reached every key is reported unavailable.
func (a *App) Models(ctx context.Context) (types.ModelsResponse, error) {
	remote, err := a.RemoteInfo(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("model registry unreachable")
		remote = nil
	}
	models := a.validator.Report(ctx, a.modelKeys(), remote)
	for i := range models {
		if p, ok := a.progress.Get(models[i].Key); ok {
			models[i].Progress = &p
		}
	}
	services := make(map[string]bool, len(modelcache.ServiceModels))
	for svc := range modelcache.ServiceModels {
		services[svc] = a.validator.IsServiceReady(ctx, svc)
	}
	return types.ModelsResponse{Models: models, Services: services}, nil
}

// prepareDownload resolves keys against the registry and takes one
// rate-limit slot. Empty keys select every registry key. The caller owns the
// batch slot on success and must call finishDownload.
func (a *App) prepareDownload(ctx context.Context, keys []string) ([]string, map[string]types.RemoteModelInfo, error) {
	a.dlMu.Lock()
	if a.downloading {
		a.dlMu.Unlock()
		return nil, nil, errDownloadInProgress
	}
	a.downloading = true
	a.dlMu.Unlock()

	keys, remote, err := a.admit(ctx, keys)
	if err != nil {
		a.finishDownload()
		return nil, nil, err
	}
	return keys, remote, nil
}

func (a *App) admit(ctx context.Context, keys []string) ([]string, map[string]types.RemoteModelInfo, error) {
	remote, err := a.RemoteInfo(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("model registry: %w", err)
	}
	if len(keys) == 0 {
		for k := range remote {
			if a.knownKey(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
	}
	if len(keys) == 0 {
		return nil, nil, errNoModels
	}
	for _, k := range keys {
		if info, ok := remote[k]; !ok || info.DownloadURL == "" {
			return nil, nil, modelcache.ErrModelUnavailable(k)
		}
	}
	if ok, wait := a.limiter.Allow(); !ok {
		a.metrics.RateLimited()
		return nil, nil, modelcache.ErrRateLimited(wait)
	}
	return keys, remote, nil
}

func (a *App) finishDownload() {
	a.dlMu.Lock()
	a.downloading = false
	a.dlMu.Unlock()
}

// StartDownload admits a batch and runs it in the background under ctx.
func (a *App) StartDownload(ctx context.Context, keys []string) ([]string, error) {
	keys, remote, err := a.prepareDownload(ctx, keys)
	if err != nil {
		return nil, err
	}
	a.dlWG.Add(1)
	go func() {
		defer a.dlWG.Done()
		defer a.finishDownload()
		if err := a.downloader.DownloadAndCacheModels(ctx, keys, remote); err != nil {
			a.log.Error().Err(err).Strs("models", keys).Msg("model download finished with errors")
			return
		}
		a.log.Info().Strs("models", keys).Msg("model download finished")
	}()
	return keys, nil
}

// DownloadModels admits a batch and waits for it.
func (a *App) DownloadModels(ctx context.Context, keys []string) ([]string, error) {
	keys, remote, err := a.prepareDownload(ctx, keys)
	if err != nil {
		return nil, err
	}
	defer a.finishDownload()
	return keys, a.downloader.DownloadAndCacheModels(ctx, keys, remote)
}

// DeleteModel removes one cached model. Unknown keys are not found.
func (a *App) DeleteModel(ctx context.Context, key string) error {
	if !a.knownKey(key) {
		return fmt.Errorf("model %q: %w", key, modelcache.ErrNotFound)
	}
	return a.cache.DeleteModel(ctx, key)
}

func (a *App) DeleteAllModels(ctx context.Context) error { return a.cache.DeleteAll(ctx) }
