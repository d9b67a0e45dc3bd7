// Package ratelimit bounds call frequency per external source.
//
// Each source id is configured with one of three interchangeable
// algorithms: a continuously refilling token bucket, a sliding log of
// call timestamps, or a fixed window counter. State lives in
// mutex-guarded maps keyed by source id; a background sweep purges
// window state for sources with no recent activity so memory stays
// bounded.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/marklab/marksync/internal/clock"
)

// Strategy selects the limiting algorithm for a source.
type Strategy string

const (
	// TokenBucket refills capacity continuously at MaxRequests per
	// Window; each call consumes one token. Fractional accumulation
	// is preserved between checks.
	TokenBucket Strategy = "TOKEN_BUCKET"

	// SlidingWindow counts calls within a continuously moving span.
	SlidingWindow Strategy = "SLIDING_WINDOW"

	// FixedWindow resets its counter at discrete boundaries.
	FixedWindow Strategy = "FIXED_WINDOW"
)

// Config bounds one source's call rate.
type Config struct {
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
	Strategy    Strategy      `json:"strategy"`
}

// DefaultConfig allows 60 requests per minute through a token bucket.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 60,
		Window:      time.Minute,
		Strategy:    TokenBucket,
	}
}

// Status is a point-in-time view of a source's limit, computable
// without mutating state.
type Status struct {
	ProviderID string        `json:"provider_id"`
	Remaining  int           `json:"remaining"`
	Limit      int           `json:"limit"`
	ResetIn    time.Duration `json:"reset_in"`
	IsLimited  bool          `json:"is_limited"`
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

type slidingState struct {
	timestamps []time.Time
	lastSeen   time.Time
}

type fixedState struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// Limiter meters calls per source id. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	configs map[string]Config
	buckets map[string]*bucketState
	sliding map[string]*slidingState
	fixed   map[string]*fixedState

	clk    clock.Clock
	logger *log.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock substitutes the time source. Tests use a fake.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clk = c }
}

// WithLogger sets the activity logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates an empty limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		configs: make(map[string]Config),
		buckets: make(map[string]*bucketState),
		sliding: make(map[string]*slidingState),
		fixed:   make(map[string]*fixedState),
		clk:     clock.New(),
		logger:  log.New(os.Stderr, "[ratelimit] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register sets a source's limit configuration, replacing any existing
// state for that source.
func (l *Limiter) Register(providerID string, cfg Config) {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultConfig().MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.Strategy == "" {
		cfg.Strategy = TokenBucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs[providerID] = cfg
	delete(l.buckets, providerID)
	delete(l.sliding, providerID)
	delete(l.fixed, providerID)
}

// configFor returns the source's config, registering the default on
// first use. Caller holds l.mu.
func (l *Limiter) configFor(providerID string) Config {
	cfg, ok := l.configs[providerID]
	if !ok {
		cfg = DefaultConfig()
		l.configs[providerID] = cfg
	}
	return cfg
}

// CheckLimit consumes one slot if available and reports whether the
// call is allowed.
func (l *Limiter) CheckLimit(providerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.configFor(providerID)
	now := l.clk.Now()

	switch cfg.Strategy {
	case SlidingWindow:
		return l.checkSliding(providerID, cfg, now)
	case FixedWindow:
		return l.checkFixed(providerID, cfg, now)
	default:
		return l.checkBucket(providerID, cfg, now)
	}
}

func (l *Limiter) bucket(providerID string, cfg Config, now time.Time) *bucketState {
	b, ok := l.buckets[providerID]
	if !ok {
		b = &bucketState{tokens: float64(cfg.MaxRequests), lastRefill: now}
		l.buckets[providerID] = b
	}
	return b
}

// refillBucket returns the token count after refilling for elapsed
// time, without storing it.
func refillBucket(b *bucketState, cfg Config, now time.Time) float64 {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return b.tokens
	}
	rate := float64(cfg.MaxRequests) / float64(cfg.Window)
	return math.Min(float64(cfg.MaxRequests), b.tokens+rate*float64(elapsed))
}

func (l *Limiter) checkBucket(providerID string, cfg Config, now time.Time) bool {
	b := l.bucket(providerID, cfg, now)
	b.tokens = refillBucket(b, cfg, now)
	// A Retry-After penalty parks lastRefill in the future; don't pull
	// it back before the penalty expires.
	if now.After(b.lastRefill) {
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) checkSliding(providerID string, cfg Config, now time.Time) bool {
	s, ok := l.sliding[providerID]
	if !ok {
		s = &slidingState{}
		l.sliding[providerID] = s
	}
	s.lastSeen = now

	cutoff := now.Add(-cfg.Window)
	valid := s.timestamps[:0]
	for _, ts := range s.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	s.timestamps = valid

	if len(s.timestamps) < cfg.MaxRequests {
		s.timestamps = append(s.timestamps, now)
		return true
	}
	return false
}

func (l *Limiter) checkFixed(providerID string, cfg Config, now time.Time) bool {
	f, ok := l.fixed[providerID]
	if !ok {
		f = &fixedState{windowStart: now}
		l.fixed[providerID] = f
	}
	f.lastSeen = now

	if now.Sub(f.windowStart) >= cfg.Window {
		f.count = 0
		f.windowStart = now
	}

	if f.count < cfg.MaxRequests {
		f.count++
		return true
	}
	return false
}

// Status reports the source's current limit state without consuming a
// slot. For token buckets the hypothetical refill is recomputed; no
// token is taken.
func (l *Limiter) Status(providerID string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.configFor(providerID)
	now := l.clk.Now()

	st := Status{ProviderID: providerID, Limit: cfg.MaxRequests}

	switch cfg.Strategy {
	case SlidingWindow:
		s := l.sliding[providerID]
		if s == nil {
			st.Remaining = cfg.MaxRequests
			break
		}
		cutoff := now.Add(-cfg.Window)
		inWindow := 0
		oldest := time.Time{}
		for _, ts := range s.timestamps {
			if ts.After(cutoff) {
				inWindow++
				if oldest.IsZero() || ts.Before(oldest) {
					oldest = ts
				}
			}
		}
		st.Remaining = cfg.MaxRequests - inWindow
		if st.Remaining <= 0 {
			st.IsLimited = true
			st.ResetIn = oldest.Add(cfg.Window).Sub(now)
		}

	case FixedWindow:
		f := l.fixed[providerID]
		if f == nil {
			st.Remaining = cfg.MaxRequests
			break
		}
		if now.Sub(f.windowStart) >= cfg.Window {
			st.Remaining = cfg.MaxRequests
			break
		}
		st.Remaining = cfg.MaxRequests - f.count
		if st.Remaining <= 0 {
			st.IsLimited = true
			st.ResetIn = f.windowStart.Add(cfg.Window).Sub(now)
		}

	default: // token bucket
		b := l.buckets[providerID]
		if b == nil {
			st.Remaining = cfg.MaxRequests
			break
		}
		tokens := refillBucket(b, cfg, now)
		st.Remaining = int(tokens)
		if tokens < 1 {
			st.IsLimited = true
			perToken := float64(cfg.Window) / float64(cfg.MaxRequests)
			st.ResetIn = time.Duration((1 - tokens) * perToken)
			if b.lastRefill.After(now) {
				// Retry-After penalty still in force.
				st.ResetIn += b.lastRefill.Sub(now)
			}
		}
	}

	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if st.ResetIn < 0 {
		st.ResetIn = 0
	}
	return st
}

// WaitForSlot sleeps until the source's limit state should admit a
// call, or returns immediately if it already would.
func (l *Limiter) WaitForSlot(ctx context.Context, providerID string) error {
	st := l.Status(providerID)
	if !st.IsLimited {
		return nil
	}
	return l.clk.Sleep(ctx, st.ResetIn)
}

// Execute runs op once the source's limit admits it: check, and on
// denial wait for a slot and check again. Bounded only by eventual slot
// availability and ctx cancellation, not a fixed retry count.
func (l *Limiter) Execute(ctx context.Context, providerID string, op func(context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.CheckLimit(providerID) {
			return op(ctx)
		}
		if err := l.WaitForSlot(ctx, providerID); err != nil {
			return fmt.Errorf("waiting for rate limit slot: %w", err)
		}
	}
}

// remainingHeaders and limitHeaders are the common naming variants for
// server-reported rate limit state, checked case-insensitively.
var (
	remainingHeaders = []string{
		"X-RateLimit-Remaining",
		"X-Rate-Limit-Remaining",
		"RateLimit-Remaining",
		"X-RateLimit-Requests-Remaining",
	}
	limitHeaders = []string{
		"X-RateLimit-Limit",
		"X-Rate-Limit-Limit",
		"RateLimit-Limit",
		"X-RateLimit-Requests-Limit",
	}
	retryAfterHeaders = []string{
		"Retry-After",
		"X-Retry-After",
	}
)

// UpdateFromHeaders reconciles local token-bucket state with
// server-reported remaining/limit values and Retry-After penalties.
// Header lookup is case-insensitive across several naming variants. A
// no-op for sliding-window and fixed-window sources, whose local
// accounting is authoritative.
func (l *Limiter) UpdateFromHeaders(providerID string, headers http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.configFor(providerID)
	if cfg.Strategy != TokenBucket {
		return
	}

	now := l.clk.Now()
	b := l.bucket(providerID, cfg, now)

	if v := firstHeader(headers, limitHeaders); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit != cfg.MaxRequests {
			cfg.MaxRequests = limit
			l.configs[providerID] = cfg
			l.logger.Printf("%s: server reports limit %d", providerID, limit)
		}
	}

	if v := firstHeader(headers, remainingHeaders); v != "" {
		if remaining, err := strconv.ParseFloat(v, 64); err == nil && remaining >= 0 {
			b.tokens = math.Min(remaining, float64(cfg.MaxRequests))
			b.lastRefill = now
		}
	}

	// A Retry-After penalty wins over remaining counts: drain the
	// bucket and defer refill until the requested delay passes.
	if v := firstHeader(headers, retryAfterHeaders); v != "" {
		if delay := parseRetryAfter(v, now); delay > 0 {
			b.tokens = 0
			b.lastRefill = now.Add(delay)
			l.logger.Printf("%s: server requests retry after %v", providerID, delay)
		}
	}
}

// parseRetryAfter accepts both Retry-After forms: delay seconds and an
// HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.Sub(now)
	}
	return 0
}

func firstHeader(headers http.Header, names []string) string {
	for _, name := range names {
		if v := headers.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// SweepIdle purges sliding-window and fixed-window state for sources
// with no activity since the cutoff. Token buckets are a fixed-size
// struct per source and refill on their own; they are left alone.
func (l *Limiter) SweepIdle(idleFor time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clk.Now().Add(-idleFor)
	purged := 0

	for id, s := range l.sliding {
		if s.lastSeen.Before(cutoff) {
			delete(l.sliding, id)
			purged++
		}
	}
	for id, f := range l.fixed {
		if f.lastSeen.Before(cutoff) {
			delete(l.fixed, id)
			purged++
		}
	}
	return purged
}

// StartSweep runs SweepIdle on a fixed-period ticker until ctx is
// cancelled. The sweep timer is independent of sync cycles.
func (l *Limiter) StartSweep(ctx context.Context, interval, idleFor time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.SweepIdle(idleFor); n > 0 {
					l.logger.Printf("purged %d idle rate limit entries", n)
				}
			}
		}
	}()
}
