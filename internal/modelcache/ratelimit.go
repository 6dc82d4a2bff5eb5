package modelcache

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Download attempt limits.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = time.Hour
	DefaultCooldown    = 5 * time.Minute
)

// RateLimitConfig tunes a RateLimiter. Zero values take the defaults.
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
	Cooldown    time.Duration
	// StatePath persists attempts across restarts when set.
	StatePath string
	Now       func() time.Time
	Logger    zerolog.Logger
}

// RateLimiter admits at most MaxAttempts downloads per rolling Window.
// Reaching the limit starts a Cooldown; while the window is still full after
// the cooldown, each rejected attempt starts a new one.
type RateLimiter struct {
	mu            sync.Mutex
	attempts      []time.Time
	cooldownUntil time.Time

	max      int
	window   time.Duration
	cooldown time.Duration
	path     string
	now      func() time.Time
	log      zerolog.Logger
}

type rateLimitRecord struct {
	AttemptsUnixMs      []int64 `json:"attempts_unix_ms"`
	CooldownUntilUnixMs int64   `json:"cooldown_until_unix_ms"`
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	r := &RateLimiter{
		max:      cfg.MaxAttempts,
		window:   cfg.Window,
		cooldown: cfg.Cooldown,
		path:     cfg.StatePath,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
	if r.max <= 0 {
		r.max = DefaultMaxAttempts
	}
	if r.window <= 0 {
		r.window = DefaultWindow
	}
	if r.cooldown <= 0 {
		r.cooldown = DefaultCooldown
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.load()
	return r
}

// Allow records an attempt when admitted. Otherwise it returns how long the
// caller must wait.
func (r *RateLimiter) Allow() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	if now.Before(r.cooldownUntil) {
		return false, max(r.cooldownUntil.Sub(now), r.windowWait(now))
	}
	if len(r.attempts) >= r.max {
		r.cooldownUntil = now.Add(r.cooldown)
		r.save()
		return false, max(r.cooldown, r.windowWait(now))
	}
	r.attempts = append(r.attempts, now)
	if len(r.attempts) >= r.max {
		r.cooldownUntil = now.Add(r.cooldown)
	}
	r.save()
	return true, 0
}

// Remaining returns the attempts left in the current window.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return max(0, r.max-len(r.attempts))
}

func (r *RateLimiter) prune(now time.Time) {
	keep := r.attempts[:0]
	for _, t := range r.attempts {
		if now.Sub(t) < r.window {
			keep = append(keep, t)
		}
	}
	r.attempts = keep
}

// windowWait is the time until the oldest attempt leaves a full window.
func (r *RateLimiter) windowWait(now time.Time) time.Duration {
	if len(r.attempts) < r.max {
		return 0
	}
	return r.attempts[0].Add(r.window).Sub(now)
}

func (r *RateLimiter) load() {
	if r.path == "" {
		return
	}
	f, err := os.Open(r.path)
	if err != nil {
		return
	}
	defer f.Close()
	var rec rateLimitRecord
	if err := json.NewDecoder(f).Decode(&rec); err != nil {
		r.log.Warn().Err(err).Str("path", r.path).Msg("ignoring unreadable rate limit state")
		return
	}
	for _, ms := range rec.AttemptsUnixMs {
		r.attempts = append(r.attempts, time.UnixMilli(ms))
	}
	if rec.CooldownUntilUnixMs > 0 {
		r.cooldownUntil = time.UnixMilli(rec.CooldownUntilUnixMs)
	}
}

func (r *RateLimiter) save() {
	if r.path == "" {
		return
	}
	rec := rateLimitRecord{AttemptsUnixMs: make([]int64, 0, len(r.attempts))}
	for _, t := range r.attempts {
		rec.AttemptsUnixMs = append(rec.AttemptsUnixMs, t.UnixMilli())
	}
	if !r.cooldownUntil.IsZero() {
		rec.CooldownUntilUnixMs = r.cooldownUntil.UnixMilli()
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(r.path, b, 0o644); err != nil {
		r.log.Warn().Err(err).Str("path", r.path).Msg("failed to persist rate limit state")
	}
}
