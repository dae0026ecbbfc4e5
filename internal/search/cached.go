package search

import (
	"context"
	"fmt"
	"time"

	"triage/internal/cache"
)

// maxCachedResults bounds the cache; beyond it expired entries are purged,
// and when none have expired the cache starts over
const maxCachedResults = 1000

// CachedSearcher memoises results of another Searcher for a TTL
type CachedSearcher struct {
	next  Searcher
	cache *cache.Cache[*Result]
}

// NewCachedSearcher wraps next with an in-memory TTL cache
func NewCachedSearcher(next Searcher, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{next: next, cache: cache.New[*Result](ttl)}
}

// Search serves repeated queries from the cache. Errors are not cached.
func (s *CachedSearcher) Search(ctx context.Context, indexID, query string, topK int) (*Result, error) {
	key := fmt.Sprintf("%s|%d|%s", indexID, topK, query)
	if r, ok := s.cache.Get(key); ok {
		return r, nil
	}

	r, err := s.next.Search(ctx, indexID, query, topK)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, r)
	if s.cache.Len() > maxCachedResults && s.cache.Purge() == 0 {
		s.cache.Clear()
	}
	return r, nil
}
