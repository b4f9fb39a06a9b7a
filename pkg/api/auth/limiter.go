package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

const (
	limiterTTL           = 10 * time.Minute
	limiterCleanupPeriod = time.Minute
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per identity. Entries unused for
// limiterTTL are dropped by a background loop started on first use.
type limiterPool struct {
	rps   float64
	burst int
	clock timeutil.Clock

	mu   sync.Mutex
	m    map[string]*limiterEntry
	once sync.Once
	stop chan struct{}
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{rps: rps, burst: burst, clock: timeutil.System, m: make(map[string]*limiterEntry), stop: make(chan struct{})}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.once.Do(func() { go p.cleanupLoop() })

	now := p.clock.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}

// Allow reports whether key may make a request now. A non-positive rate
// disables limiting.
func (p *limiterPool) Allow(key string) bool {
	if p.rps <= 0 {
		return true
	}
	return p.get(key).Allow()
}

func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *limiterPool) evict(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}

func (p *limiterPool) Shutdown() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
}

func (p *limiterPool) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evict(p.clock.Now().Add(-limiterTTL))
		case <-p.stop:
			return
		}
	}
}
