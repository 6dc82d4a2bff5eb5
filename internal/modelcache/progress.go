package modelcache

import (
	"sync"

	"visiond/pkg/types"
)

// ProgressSink observes progress updates, e.g. CLI progress bars.
type ProgressSink interface {
	Update(key string, p types.DownloadProgress)
}

// Progress is the per-model download state of the current batch.
type Progress struct {
	mu    sync.Mutex
	state map[string]types.DownloadProgress
	sinks []ProgressSink
}

func NewProgress() *Progress {
	return &Progress{state: make(map[string]types.DownloadProgress)}
}

// AddSink registers an observer.
func (p *Progress) AddSink(s ProgressSink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Reset clears every entry.
func (p *Progress) Reset() {
	p.mu.Lock()
	p.state = make(map[string]types.DownloadProgress)
	p.mu.Unlock()
}

func (p *Progress) update(key string, fn func(*types.DownloadProgress)) {
	p.mu.Lock()
	cur, ok := p.state[key]
	if !ok {
		cur = types.DownloadProgress{CachingStatus: types.CachingNotStarted}
	}
	fn(&cur)
	p.state[key] = cur
	sinks := append([]ProgressSink(nil), p.sinks...)
	p.mu.Unlock()
	for _, s := range sinks {
		s.Update(key, cur)
	}
}

// SetPercent records download completion for key.
func (p *Progress) SetPercent(key string, pct float64) {
	p.update(key, func(d *types.DownloadProgress) { d.DownloadPercent = pct })
}

// SetStatus records the caching status for key.
func (p *Progress) SetStatus(key string, s types.CachingStatus) {
	p.update(key, func(d *types.DownloadProgress) { d.CachingStatus = s })
}

// Fail marks key as failed.
func (p *Progress) Fail(key string) {
	p.update(key, func(d *types.DownloadProgress) {
		d.DownloadPercent = -1
		d.CachingStatus = types.CachingError
	})
}

// Get returns the entry for key.
func (p *Progress) Get(key string) (types.DownloadProgress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.state[key]
	return d, ok
}

// Snapshot copies every entry.
func (p *Progress) Snapshot() map[string]types.DownloadProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]types.DownloadProgress, len(p.state))
	for k, v := range p.state {
		out[k] = v
	}
	return out
}
