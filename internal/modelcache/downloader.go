package modelcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gammazero/workerpool"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"visiond/internal/events"
	"visiond/pkg/types"
)

// Defaults applied when corresponding DownloaderConfig fields are unset.
const (
	defaultEntryWorkers    = 4
	defaultRetryMaxElapsed = 2 * time.Minute
)

// DownloaderConfig encapsulates the tunables of a Downloader.
type DownloaderConfig struct {
	Client          *http.Client
	EntryWorkers    int
	RetryMaxElapsed time.Duration
	Publisher       events.Publisher
	Logger          zerolog.Logger
	// TempDir holds spooled archives and extracted entries; empty means
	// the system default.
	TempDir string
}

// Downloader fetches model archives and caches their entries.
type Downloader struct {
	cache        *Cache
	progress     *Progress
	client       *http.Client
	entryWorkers int
	retryMax     time.Duration
	tempDir      string
	publisher    events.Publisher
	log          zerolog.Logger
}

func NewDownloader(c *Cache, progress *Progress, cfg DownloaderConfig) *Downloader {
	d := &Downloader{
		cache:        c,
		progress:     progress,
		client:       cfg.Client,
		entryWorkers: cfg.EntryWorkers,
		retryMax:     cfg.RetryMaxElapsed,
		tempDir:      cfg.TempDir,
		publisher:    cfg.Publisher,
		log:          cfg.Logger.With().Str("component", "downloader").Logger(),
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	if d.entryWorkers <= 0 {
		d.entryWorkers = defaultEntryWorkers
	}
	if d.retryMax <= 0 {
		d.retryMax = defaultRetryMaxElapsed
	}
	if d.publisher == nil {
		d.publisher = events.Nop{}
	}
	if d.progress == nil {
		d.progress = NewProgress()
	}
	return d
}

// Progress returns the shared progress tracker.
func (d *Downloader) Progress() *Progress { return d.progress }

// DownloadAndCacheModels resets progress, then downloads every key
// concurrently and waits for all of them. Failures are joined into the
// returned error; models that succeeded stay cached.
func (d *Downloader) DownloadAndCacheModels(ctx context.Context, keys []string, remote map[string]types.RemoteModelInfo) error {
	d.progress.Reset()
	for _, k := range keys {
		d.progress.update(k, func(*types.DownloadProgress) {})
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := d.downloadOne(ctx, key, remote); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
			}
		}(k)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (d *Downloader) downloadOne(ctx context.Context, key string, remote map[string]types.RemoteModelInfo) (err error) {
	start := time.Now()
	info, ok := remote[key]
	defer func() {
		if err != nil {
			d.progress.Fail(key)
			d.log.Error().Err(err).Str("model", key).Msg("download failed")
			d.publisher.Publish(events.New(events.DownloadError, key, map[string]any{"error": err.Error()}))
			return
		}
		d.log.Info().Str("model", key).Dur("dur", time.Since(start)).Msg("model cached")
		d.publisher.Publish(events.New(events.DownloadDone, key, map[string]any{"etag": info.ETag}))
	}()
	if !ok || info.DownloadURL == "" {
		return ErrModelUnavailable(key)
	}
	d.publisher.Publish(events.New(events.DownloadStart, key, map[string]any{"url": redactQuery(info.DownloadURL)}))

	archive, size, err := d.fetch(ctx, key, info.DownloadURL)
	if err != nil {
		return err
	}
	defer discard(archive)
	mt, err := mimetype.DetectReader(io.NewSectionReader(archive, 0, size))
	if err != nil {
		return fmt.Errorf("sniff archive: %w", err)
	}
	if !isZip(mt) {
		return fmt.Errorf("unexpected archive type %s", mt.String())
	}
	d.progress.SetStatus(key, types.CachingInProgress)
	files, err := d.cacheArchive(ctx, key, archive, size)
	if err != nil {
		return err
	}
	if err := d.cache.PutManifest(ctx, key, types.Manifest{ETag: info.ETag, Files: files}); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	d.progress.SetStatus(key, types.CachingDone)
	return nil
}

// fetch downloads url into a temporary file with retries on transient
// failures. The caller closes and removes the file.
func (d *Downloader) fetch(ctx context.Context, key, url string) (*os.File, int64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = d.retryMax

	var (
		spool *os.File
		size  int64
	)
	op := func() error {
		f, n, err := d.fetchOnce(ctx, key, url)
		if err != nil {
			return err
		}
		spool, size = f, n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		d.log.Warn().Err(err).Str("model", key).Dur("retry_in", wait).Msg("archive fetch failed, retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, 0, err
	}
	return spool, size, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, key, url string) (_ *os.File, _ int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, backoff.Permanent(ctx.Err())
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("archive http error: %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, 0, err
		}
		return nil, 0, backoff.Permanent(err)
	}
	spool, err := d.tempFile("archive-*.zip")
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	defer func() {
		if err != nil {
			discard(spool)
		}
	}()
	d.progress.SetPercent(key, 0)
	pr := &progressReader{r: resp.Body, total: resp.ContentLength, onPercent: func(p float64) {
		d.progress.SetPercent(key, p)
	}}
	n, err := io.Copy(spool, pr)
	if err != nil {
		return nil, 0, err
	}
	d.progress.SetPercent(key, 100)
	return spool, n, nil
}

func (d *Downloader) tempFile(pattern string) (*os.File, error) {
	return os.CreateTemp(d.tempDir, "visiond-"+pattern)
}

// discard closes and removes a temporary file.
func discard(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}

// cacheArchive hashes and stores every supported entry using a bounded pool.
// Entries with unknown extensions are skipped.
func (d *Downloader) cacheArchive(ctx context.Context, key string, archive io.ReaderAt, size int64) (map[string]string, error) {
	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	var (
		mu    sync.Mutex
		files = make(map[string]string)
		errs  []error
	)
	wp := workerpool.New(d.entryWorkers)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rel := archivePath(f.Name)
		if rel == "" {
			continue
		}
		if rel == manifestName {
			d.log.Error().Str("model", key).Str("entry", f.Name).Msg("archive entry collides with the cache manifest, skipping")
			continue
		}
		hash, ok := HandlerFor(rel)
		if !ok {
			d.log.Error().Str("model", key).Str("entry", f.Name).Msg("no handler for archive entry, skipping")
			continue
		}
		f := f
		wp.Submit(func() {
			sum, err := d.cacheEntry(ctx, key, rel, f, hash)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", rel, err))
				return
			}
			files[rel] = sum
		})
	}
	wp.StopWait()
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return files, nil
}

// cacheEntry extracts one entry to a temporary file, hashes it there and
// streams it into the store.
func (d *Downloader) cacheEntry(ctx context.Context, key, rel string, f *zip.File, hash HashFunc) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	tmp, err := d.tempFile("entry-*")
	if err != nil {
		rc.Close()
		return "", err
	}
	defer discard(tmp)
	n, err := io.Copy(tmp, rc)
	rc.Close()
	if err != nil {
		return "", err
	}
	sum, err := hash(tmp, n)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if err := d.cache.PutFileFrom(ctx, key, rel, tmp, n); err != nil {
		return "", err
	}
	return sum, nil
}

// archivePath normalizes an entry name to a relative slash path. Names that
// would leave the model directory are rejected.
func archivePath(name string) string {
	p := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// isZip accepts zip and zip-based containers.
func isZip(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

// redactQuery drops presigned query parameters before logging a URL.
func redactQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

// progressReader reports whole-percent progress as bytes arrive.
type progressReader struct {
	r         io.Reader
	total     int64
	read      int64
	lastPct   int
	onPercent func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct != p.lastPct && pct <= 100 {
			p.lastPct = pct
			p.onPercent(float64(pct))
		}
	}
	return n, err
}
