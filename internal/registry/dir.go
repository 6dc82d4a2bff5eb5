package registry

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"lukechampine.com/blake3"

	"visiond/internal/common/fsutil"
	"visiond/pkg/types"
)

// ArchivesRoute is where DirSource archives are expected to be served.
const ArchivesRoute = "/registry/archives/"

// DirSource serves archives from a local directory laid out as
// {root}/{key}/{name}.zip. ETags are blake3 digests of the archive.
type DirSource struct {
	root    string
	baseURL string
	keys    []string
	log     zerolog.Logger

	mu    sync.Mutex
	etags map[string]etagEntry
}

type etagEntry struct {
	modTime time.Time
	size    int64
	etag    string
}

// NewDirSource scans root on every Resolve. baseURL is the public origin
// the archive URLs are built on.
func NewDirSource(root, baseURL string, keys []string, log zerolog.Logger) (*DirSource, error) {
	p, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return &DirSource{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		keys:    keysOrDefault(keys),
		log:     log.With().Str("component", "registry").Logger(),
		etags:   make(map[string]etagEntry),
	}, nil
}

func (d *DirSource) Resolve(ctx context.Context) (map[string]types.RemoteModelInfo, error) {
	out := make(map[string]types.RemoteModelInfo, len(d.keys))
	for _, key := range d.keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, info, ok := d.latest(key)
		if !ok {
			continue
		}
		etag, err := d.etag(filepath.Join(d.root, key, name), info)
		if err != nil {
			d.log.Error().Err(err).Str("key", key).Msg("hash archive")
			continue
		}
		out[key] = types.RemoteModelInfo{
			DownloadURL: d.baseURL + ArchivesRoute + url.PathEscape(key) + "/" + url.PathEscape(name),
			ModelName:   name,
			ETag:        etag,
		}
	}
	return out, nil
}

// ArchivePath maps a served archive name back to the file on disk.
func (d *DirSource) ArchivePath(key, name string) (string, error) {
	if !d.known(key) || !strings.HasSuffix(strings.ToLower(name), ".zip") || strings.ContainsAny(name, `/\`) {
		return "", os.ErrNotExist
	}
	return fsutil.JoinWithin(d.root, key+"/"+name)
}

func (d *DirSource) known(key string) bool {
	for _, k := range d.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (d *DirSource) latest(key string) (string, os.FileInfo, bool) {
	entries, err := os.ReadDir(filepath.Join(d.root, key))
	if err != nil {
		return "", nil, false
	}
	var (
		best     string
		bestInfo os.FileInfo
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if bestInfo == nil || info.ModTime().After(bestInfo.ModTime()) {
			best, bestInfo = e.Name(), info
		}
	}
	return best, bestInfo, bestInfo != nil
}

func (d *DirSource) etag(path string, info os.FileInfo) (string, error) {
	d.mu.Lock()
	if e, ok := d.etags[path]; ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		d.mu.Unlock()
		return e.etag, nil
	}
	d.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	etag := hex.EncodeToString(h.Sum(nil))

	d.mu.Lock()
	d.etags[path] = etagEntry{modTime: info.ModTime(), size: info.Size(), etag: etag}
	d.mu.Unlock()
	return etag, nil
}
