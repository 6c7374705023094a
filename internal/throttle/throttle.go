// Package throttle gates photo delivery with a per-client sliding window.
// Two counters per client: every request counts against one, only failed
// authorization attempts count against the other. Either can escalate the
// client into a temporary block. A legitimate heavy user therefore hits a much
// higher ceiling than a client probing with bad tokens.
package throttle

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const failedKeyPrefix = "failed:"

type Options struct {
	// Window is the counting window; it resets wholesale, not continuously.
	Window time.Duration
	// MaxRequests per window before the client is blocked.
	MaxRequests int
	// MaxFailures per window (token/ownership failures) before a block.
	MaxFailures int
	// BlockDuration is how long an escalated client stays rejected.
	BlockDuration time.Duration
	// CleanupEvery is the sweep interval for expired entries.
	CleanupEvery time.Duration
}

func (o *Options) withDefaults() {
	if o.Window <= 0 {
		o.Window = time.Minute
	}
	if o.MaxRequests <= 0 {
		o.MaxRequests = 100
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 10
	}
	if o.BlockDuration <= 0 {
		o.BlockDuration = 15 * time.Minute
	}
	if o.CleanupEvery <= 0 {
		o.CleanupEvery = 5 * time.Minute
	}
}

type entry struct {
	count   int
	reset   time.Time
	blocked bool
}

// PhotoThrottle is safe for concurrent use from many request goroutines. It is
// created at server start, swept by a background goroutine, and torn down with
// Stop on shutdown.
type PhotoThrottle struct {
	mu      sync.Mutex
	entries map[string]*entry

	opts Options
	log  *zap.Logger
	now  func() time.Time
	done chan struct{}
	once sync.Once
}

func New(opts Options, log *zap.Logger) *PhotoThrottle {
	opts.withDefaults()
	return &PhotoThrottle{
		entries: make(map[string]*entry),
		opts:    opts,
		log:     log,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// WithClock overrides the time source. Used by tests.
func (t *PhotoThrottle) WithClock(now func() time.Time) *PhotoThrottle {
	t.now = now
	return t
}

// Start launches the periodic sweep.
func (t *PhotoThrottle) Start() {
	go func() {
		ticker := time.NewTicker(t.opts.CleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-t.done:
				return
			}
		}
	}()
}

func (t *PhotoThrottle) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Allow admits or rejects a request for the given client key. When rejected,
// retryAfter tells the client how long to back off.
func (t *PhotoThrottle) Allow(key string) (retryAfter time.Duration, ok bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// A block earned through failed authorization attempts rejects everything,
	// valid tokens included, until it expires.
	if f := t.entries[failedKeyPrefix+key]; f != nil && f.blocked && now.Before(f.reset) {
		return f.reset.Sub(now), false
	}

	e := t.entries[key]
	if e == nil || now.After(e.reset) {
		e = &entry{reset: now.Add(t.opts.Window)}
		t.entries[key] = e
	}

	if e.blocked {
		if now.Before(e.reset) {
			t.log.Warn("blocked client rejected",
				zap.String("client_key", key),
				zap.Duration("remaining", e.reset.Sub(now)))
			return e.reset.Sub(now), false
		}
		// Block served; start a fresh window.
		*e = entry{reset: now.Add(t.opts.Window)}
	}

	e.count++
	if e.count > t.opts.MaxRequests {
		e.blocked = true
		e.reset = now.Add(t.opts.BlockDuration)
		t.log.Error("request limit exceeded, blocking client",
			zap.String("client_key", key),
			zap.Int("count", e.count),
			zap.Int("max", t.opts.MaxRequests),
			zap.Duration("block", t.opts.BlockDuration))
		return e.reset.Sub(now), false
	}

	if e.count > t.opts.MaxRequests*8/10 {
		t.log.Warn("client approaching request limit",
			zap.String("client_key", key),
			zap.Int("count", e.count),
			zap.Int("max", t.opts.MaxRequests))
	}
	return 0, true
}

// RecordFailure counts one failed token or ownership check against the
// client's separate failure window, escalating to a block past the threshold.
func (t *PhotoThrottle) RecordFailure(key string) {
	fkey := failedKeyPrefix + key
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// An expired entry is replaced even if it was a block: the served block is
	// over, and a fresh burst of failures must be able to earn a new one.
	e := t.entries[fkey]
	if e == nil || now.After(e.reset) {
		e = &entry{reset: now.Add(t.opts.Window)}
		t.entries[fkey] = e
	}

	e.count++
	if !e.blocked && e.count >= t.opts.MaxFailures {
		e.blocked = true
		e.reset = now.Add(t.opts.BlockDuration)
		t.log.Error("too many failed attempts, blocking client",
			zap.String("client_key", key),
			zap.Int("failures", e.count),
			zap.Int("max", t.opts.MaxFailures),
			zap.Duration("block", t.opts.BlockDuration))
	}
}

// sweep evicts entries whose window expired. Expired blocks are demoted first
// and collected on the following pass, so a currently blocked client is never
// forgotten early.
func (t *PhotoThrottle) sweep() {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	cleaned := 0
	for key, e := range t.entries {
		if now.Before(e.reset) {
			continue
		}
		if e.blocked {
			e.blocked = false
			continue
		}
		delete(t.entries, key)
		cleaned++
	}
	if cleaned > 0 {
		t.log.Debug("swept expired throttle entries", zap.Int("count", cleaned))
	}
}

// ClientKey derives the throttle key from the client's IP plus a truncated
// user agent, so trivial IP rotation or UA swapping alone does not reset the
// counters.
func ClientKey(r *http.Request) string {
	ua := r.UserAgent()
	if ua == "" {
		ua = "Unknown"
	}
	if len(ua) > 50 {
		ua = ua[:50]
	}
	return RealIP(r) + ":" + ua
}

// RealIP prefers edge-provided headers over the peer address so the throttle
// stays effective behind a reverse proxy or CDN.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
