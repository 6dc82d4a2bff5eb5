// Package frames owns the single point of camera frame acquisition.
//
// A Manager throttles calls to a registered Producer so that every consumer
// within one throttle window receives the same *types.Frame. The manager is
// constructed once per application session and passed explicitly to whoever
// needs frames; there is no package-level instance.
package frames

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"visiond/pkg/types"
)

// DefaultTargetFPS is used when NewManager receives a non-positive target.
const DefaultTargetFPS = 30

// Producer captures one frame synchronously. A nil frame with a nil error
// means the source had nothing to offer.
type Producer func() (*types.Frame, error)

// Observer is notified about captures and cache hits. It is used for metrics.
type Observer interface {
	FrameCaptured()
	FrameServedFromCache()
}

// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	producer Producer
	last     *types.Frame
	lastAt   time.Time
	captured bool

	targetFPS int
	interval  time.Duration
	seq       uint64

	captures  uint64
	cacheHits uint64

	now      func() time.Time
	observer Observer
	log      zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithObserver installs a capture observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "frames").Logger() }
}

// NewManager returns a Manager throttled to targetFPS captures per second.
func NewManager(targetFPS int, opts ...Option) *Manager {
	if targetFPS <= 0 {
		targetFPS = DefaultTargetFPS
	}
	m := &Manager{
		targetFPS: targetFPS,
		interval:  time.Second / time.Duration(targetFPS),
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Interval is the minimum spacing between two real captures.
func (m *Manager) Interval() time.Duration { return m.interval }

// RegisterProducer replaces any previously registered producer. The cached
// frame belongs to the old producer and is dropped.
func (m *Manager) RegisterProducer(p Producer) {
	m.mu.Lock()
	m.producer = p
	m.last = nil
	m.lastAt = time.Time{}
	m.captured = false
	m.mu.Unlock()
	m.log.Debug().Msg("producer registered")
}

// UnregisterProducer clears the producer and the cached frame.
func (m *Manager) UnregisterProducer() {
	m.mu.Lock()
	m.producer = nil
	m.last = nil
	m.lastAt = time.Time{}
	m.captured = false
	m.mu.Unlock()
	m.log.Debug().Msg("producer unregistered")
}

// HasProducer reports whether a producer is registered.
func (m *Manager) HasProducer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.producer != nil
}

// CurrentFrame returns the latest frame. Without a producer it returns nil.
// Within one throttle interval of the last capture the cached frame (which may
// itself be nil) is returned without invoking the producer. Producer errors
// are returned as-is and leave the cache untouched. The returned frame is a
// stamped shallow copy of what the producer returned; its pixel data is
// shared and must not be written.
func (m *Manager) CurrentFrame() (*types.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.producer == nil {
		return nil, nil
	}
	now := m.now()
	if m.captured && now.Sub(m.lastAt) < m.interval {
		m.cacheHits++
		if m.observer != nil {
			m.observer.FrameServedFromCache()
		}
		return m.last, nil
	}
	f, err := m.producer()
	if err != nil {
		return nil, err
	}
	m.captures++
	if f != nil {
		// Producers may hand back the same buffer every time; stamp a copy so
		// frames already given to consumers never change.
		cp := *f
		m.seq++
		cp.Seq = m.seq
		if cp.Timestamp.IsZero() {
			cp.Timestamp = now
		}
		f = &cp
	}
	m.last = f
	m.lastAt = now
	m.captured = true
	if m.observer != nil {
		m.observer.FrameCaptured()
	}
	return f, nil
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() types.FrameStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.FrameStats{
		Captures:    m.captures,
		CacheHits:   m.cacheHits,
		HasProducer: m.producer != nil,
		TargetFPS:   m.targetFPS,
	}
}
