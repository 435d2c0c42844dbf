// Package ratelimit provides a best-effort per-client request limiter. It is
// an abuse dampener, not a security boundary: under horizontal scaling each
// instance keeps its own counters.
package ratelimit

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Store answers whether a request from ip against a route class may proceed.
// The in-memory implementation below serves single instances; a shared
// external store can implement the same interface for multi-instance
// deployments.
type Store interface {
	Allow(ip, routeClass string) bool
}

// Limit is a token-bucket configuration for one route class.
type Limit struct {
	Rate  rate.Limit
	Burst int
}

// MemoryStore keeps one token bucket per (ip, routeClass) in a bounded LRU.
// Evicting a cold entry resets that client's bucket, which only ever errs in
// the client's favor.
type MemoryStore struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	classes  map[string]Limit
	fallback Limit
}

// NewMemoryStore returns a store holding at most size buckets, using
// fallback for route classes without an explicit limit.
func NewMemoryStore(size int, fallback Limit) (*MemoryStore, error) {
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		limiters: cache,
		classes:  map[string]Limit{},
		fallback: fallback,
	}, nil
}

// SetClass configures the limit for a route class. Existing buckets for the
// class are unaffected until evicted.
func (s *MemoryStore) SetClass(routeClass string, limit Limit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[routeClass] = limit
}

// Allow reports whether a request from ip may proceed and consumes one token
// if so.
func (s *MemoryStore) Allow(ip, routeClass string) bool {
	s.mu.Lock()
	key := ip + "|" + routeClass
	limiter, ok := s.limiters.Get(key)
	if !ok {
		limit, ok := s.classes[routeClass]
		if !ok {
			limit = s.fallback
		}
		limiter = rate.NewLimiter(limit.Rate, limit.Burst)
		s.limiters.Add(key, limiter)
	}
	s.mu.Unlock()
	return limiter.Allow()
}
