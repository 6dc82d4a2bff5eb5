package modelcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"visiond/pkg/types"
)

// Root is the namespace every cached model lives under.
const Root = "/models/"

const manifestName = "manifest.json"

// Cache lays models out as /models/{key}/{relativePath} plus
// /models/{key}/manifest.json on top of a Store.
type Cache struct {
	store Store
	log   zerolog.Logger
}

// NewCache wraps store.
func NewCache(store Store, log zerolog.Logger) *Cache {
	return &Cache{store: store, log: log.With().Str("component", "modelcache").Logger()}
}

// Store returns the underlying store.
func (c *Cache) Store() Store { return c.store }

// FilePath returns the store path of a file of model key.
func FilePath(key, rel string) string {
	return path.Join(Root, key, path.Clean("/"+rel))
}

// ManifestPath returns the store path of the manifest of model key.
func ManifestPath(key string) string { return path.Join(Root, key, manifestName) }

func modelPrefix(key string) string { return Root + key + "/" }

// PutFile writes one extracted file of model key.
func (c *Cache) PutFile(ctx context.Context, key, rel string, data []byte) error {
	return c.store.Put(ctx, FilePath(key, rel), data)
}

// PutFileFrom writes one extracted file of model key from r. Stores without
// streaming writes get the content buffered.
func (c *Cache) PutFileFrom(ctx context.Context, key, rel string, r io.Reader, size int64) error {
	if ss, ok := c.store.(StreamStore); ok {
		return ss.PutStream(ctx, FilePath(key, rel), r, size)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, FilePath(key, rel), data)
}

// PutManifest persists m for key.
func (c *Cache) PutManifest(ctx context.Context, key string, m types.Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, ManifestPath(key), b)
}

// GetCachedManifest returns the stored manifest of key, or nil when absent.
func (c *Cache) GetCachedManifest(ctx context.Context, key string) (*types.Manifest, error) {
	b, err := c.store.Get(ctx, ManifestPath(key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m types.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	return &m, nil
}

// hashFile applies the extension policy to a cached file.
func (c *Cache) hashFile(ctx context.Context, key, rel string) (string, error) {
	h, ok := HandlerFor(rel)
	if !ok {
		return "", fmt.Errorf("no hash handler for %s", rel)
	}
	p := FilePath(key, rel)
	if ra, ok := c.store.(ReaderAtStore); ok {
		r, size, err := ra.OpenReaderAt(ctx, p)
		if err != nil {
			return "", err
		}
		defer r.Close()
		return h(r, size)
	}
	b, err := c.store.Get(ctx, p)
	if err != nil {
		return "", err
	}
	return h(bytes.NewReader(b), int64(len(b)))
}

// DeleteModel removes every object under /models/{key}/ without reading the manifest.
func (c *Cache) DeleteModel(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "/") {
		return fmt.Errorf("invalid model key %q", key)
	}
	return c.deletePrefix(ctx, modelPrefix(key))
}

// DeleteAll clears the whole model namespace.
func (c *Cache) DeleteAll(ctx context.Context) error {
	return c.deletePrefix(ctx, Root)
}

func (c *Cache) deletePrefix(ctx context.Context, prefix string) error {
	paths, err := c.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range paths {
		if err := c.store.Delete(ctx, p); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", p, err))
		}
	}
	c.log.Info().Str("prefix", prefix).Int("objects", len(paths)).Msg("cache entries deleted")
	return errors.Join(errs...)
}
