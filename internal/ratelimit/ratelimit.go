// Package ratelimit provides per-client token-bucket admission control.
package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultCapacity is the bucket size: the number of requests a fresh
	// client may burst before refill pacing applies.
	DefaultCapacity = 20

	// DefaultWindow is the interval over which a full bucket is restored.
	DefaultWindow = time.Minute

	// DefaultMaxClients bounds the registry so memory does not grow with the
	// number of distinct client identities seen over the process lifetime.
	DefaultMaxClients = 16384
)

// Registry holds one token bucket per client identity. Buckets refill
// greedily: capacity tokens restored continuously over the window, clamped at
// capacity. Least recently seen clients are evicted once maxClients is
// reached; an evicted client starts over with a full bucket.
type Registry struct {
	capacity   int
	window     time.Duration
	maxClients int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently seen
}

type bucket struct {
	key string
	lim *rate.Limiter
}

// New constructs a Registry. Non-positive arguments fall back to defaults.
func New(capacity int, window time.Duration, maxClients int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &Registry{
		capacity:   capacity,
		window:     window,
		maxClients: maxClients,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Allow attempts to consume one token from the bucket for key, creating a
// fresh full bucket on first sight. The consume step is atomic: concurrent
// requests for the same key can never both succeed on the last token.
func (r *Registry) Allow(key string) bool {
	return r.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit timestamp, used by tests to control
// refill.
func (r *Registry) AllowAt(key string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[key]
	if ok {
		r.order.MoveToFront(el)
	} else {
		limit := rate.Limit(float64(r.capacity) / r.window.Seconds())
		b := &bucket{key: key, lim: rate.NewLimiter(limit, r.capacity)}
		el = r.order.PushFront(b)
		r.entries[key] = el
		r.evictLocked()
	}
	return el.Value.(*bucket).lim.AllowN(at, 1)
}

// RetryAfter reports how long a rejected caller should wait before one token
// becomes available.
func (r *Registry) RetryAfter() time.Duration {
	return r.window / time.Duration(r.capacity)
}

// Len reports the number of tracked client identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) evictLocked() {
	for len(r.entries) > r.maxClients {
		back := r.order.Back()
		if back == nil {
			return
		}
		r.order.Remove(back)
		delete(r.entries, back.Value.(*bucket).key)
	}
}
