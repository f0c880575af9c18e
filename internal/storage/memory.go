package storage

import (
	"bytes"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var _ Backend = (*MemoryBackend)(nil)

type certificateEntry struct {
	pem       []byte
	expiresAt time.Time
}

type MemoryBackend struct {
	// Rate limiting
	limiters  map[string]*rate.Limiter
	limiterMu sync.RWMutex
	rateLimit rate.Limit
	rateBurst int

	// Certificate cache
	certs   map[string]certificateEntry
	certsMu sync.RWMutex

	// Cleanup
	done     chan struct{}
	interval time.Duration
	once     sync.Once
}

// NewMemoryBackend returns a token-bucket limiter allowing ratePerSec requests
// per key with the given burst, plus an in-process certificate cache.
func NewMemoryBackend(ratePerSec float64, burst int) *MemoryBackend {
	m := &MemoryBackend{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(ratePerSec),
		rateBurst: burst,
		certs:     make(map[string]certificateEntry),
		done:      make(chan struct{}),
		interval:  time.Minute,
	}

	go m.cleanupLoop()

	return m
}

func (m *MemoryBackend) Allow(_ context.Context, key string) (RateLimitResult, error) {
	limiter := m.limiter(key)
	if limiter.Allow() {
		return RateLimitResult{Allowed: true}, nil
	}
	return RateLimitResult{Allowed: false, RetryAfter: m.retryAfter()}, nil
}

func (m *MemoryBackend) limiter(key string) *rate.Limiter {
	m.limiterMu.RLock()
	limiter, exists := m.limiters[key]
	m.limiterMu.RUnlock()

	if exists {
		return limiter
	}

	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()

	limiter, exists = m.limiters[key]
	if exists {
		return limiter
	}

	limiter = rate.NewLimiter(m.rateLimit, m.rateBurst)
	m.limiters[key] = limiter
	return limiter
}

func (m *MemoryBackend) retryAfter() time.Duration {
	if m.rateLimit <= 0 {
		return time.Second
	}
	d := time.Duration(float64(time.Second) / float64(m.rateLimit))
	return max(d, time.Second)
}

func (m *MemoryBackend) Get(_ context.Context, certURL string) ([]byte, error) {
	m.certsMu.RLock()
	entry, ok := m.certs[certURL]
	m.certsMu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return bytes.Clone(entry.pem), nil
}

func (m *MemoryBackend) Set(_ context.Context, certURL string, pem []byte, ttl time.Duration) error {
	m.certsMu.Lock()
	m.certs[certURL] = certificateEntry{
		pem:       bytes.Clone(pem),
		expiresAt: time.Now().Add(ttl),
	}
	m.certsMu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryBackend) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryBackend) cleanupLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.done:
			return
		}
	}
}

func (m *MemoryBackend) cleanup(now time.Time) {
	m.certsMu.Lock()
	for url, entry := range m.certs {
		if now.After(entry.expiresAt) {
			delete(m.certs, url)
		}
	}
	m.certsMu.Unlock()

	// a full bucket is indistinguishable from a fresh one
	m.limiterMu.Lock()
	for key, limiter := range m.limiters {
		if limiter.TokensAt(now) >= float64(m.rateBurst) {
			delete(m.limiters, key)
		}
	}
	m.limiterMu.Unlock()
}
