package ratelimit

import (
    "sync"
    "time"

    "golang.org/x/time/rate"
)

type entry struct {
    lim  *rate.Limiter
    seen time.Time
}

// Limiter keeps one token bucket per key (client address, identity).
type Limiter struct {
    mu    sync.Mutex
    m     map[string]*entry
    rps   rate.Limit
    burst int
    idle  time.Duration
    now   func() time.Time
}

// New creates a limiter refilling rps tokens per second up to burst.
// Buckets idle longer than idle are dropped on the next sweep.
func New(rps float64, burst int, idle time.Duration) *Limiter {
    if burst < 1 {
        burst = 1
    }
    if idle <= 0 {
        idle = 10 * time.Minute
    }
    return &Limiter{
        m:     make(map[string]*entry),
        rps:   rate.Limit(rps),
        burst: burst,
        idle:  idle,
        now:   time.Now,
    }
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
    now := l.now()
    l.mu.Lock()
    e, ok := l.m[key]
    if !ok {
        e = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
        l.m[key] = e
    }
    e.seen = now
    l.mu.Unlock()
    return e.lim.AllowN(now, 1)
}

// Sweep drops idle buckets and returns how many were removed.
func (l *Limiter) Sweep() int {
    cutoff := l.now().Add(-l.idle)
    l.mu.Lock()
    defer l.mu.Unlock()
    n := 0
    for k, e := range l.m {
        if e.seen.Before(cutoff) {
            delete(l.m, k)
            n++
        }
    }
    return n
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.m)
}
