package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"videostream/aggregatorservice/internal/domain"
	"videostream/aggregatorservice/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 200
)

type cacheConfig struct {
	ttl        time.Duration
	maxEntries int
}

func defaultCacheConfig() cacheConfig {
	return cacheConfig{
		ttl:        defaultCacheTTL,
		maxEntries: defaultCacheMaxEntries,
	}
}

type cachedSearchItems struct {
	items     []domain.SearchItem
	updatedAt time.Time
	expiresAt time.Time
}

// cacheLookup checks Redis first, then the in-memory map. Expiry is
// TTL-only: an expired entry is dropped, never served stale.
func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) ([]domain.SearchItem, bool) {
	if s.redisCache != nil {
		items, found, err := s.redisCache.Get(ctx, key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemoryOnly(key, items, now)
			return items, true
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	if now.After(entry.expiresAt) {
		metrics.CacheMissesTotal.Inc()
		delete(s.cache, key)
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return cloneSearchItems(entry.items), true
}

func (s *Service) cacheStore(ctx context.Context, key string, items []domain.SearchItem, now time.Time) {
	if s.redisCache != nil {
		_ = s.redisCache.Set(ctx, key, items, s.cacheCfg.ttl)
	}
	s.cacheStoreMemoryOnly(key, items, now)
}

func (s *Service) cacheStoreMemoryOnly(key string, items []domain.SearchItem, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchItems{
		items:     cloneSearchItems(items),
		updatedAt: now,
		expiresAt: now.Add(s.cacheCfg.ttl),
	}
	s.trimCacheLocked(now)
}

func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
		}
	}

	maxEntries := s.cacheCfg.maxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedSearchItems
	}
	entries := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		entries = append(entries, pair{key: key, entry: entry})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].entry.updatedAt.Before(entries[j].entry.updatedAt)
	})
	for i := 0; i < len(entries)-maxEntries; i++ {
		delete(s.cache, entries[i].key)
	}
}

func cloneSearchItems(items []domain.SearchItem) []domain.SearchItem {
	if items == nil {
		return nil
	}
	cloned := make([]domain.SearchItem, len(items))
	for i, item := range items {
		copied := item
		if item.Catalog != nil {
			value := *item.Catalog
			copied.Catalog = &value
		}
		cloned[i] = copied
	}
	return cloned
}

// buildSearchCacheKey includes the endpoint and model overrides because they
// change what a search returns. The API key never participates: it does not
// affect results and must not be written anywhere observable.
func buildSearchCacheKey(strategy domain.SearchStrategy, query string, settings domain.AISettings) string {
	return strings.Join([]string{
		"s=" + string(strategy),
		"q=" + strings.ToLower(strings.TrimSpace(query)),
		"e=" + strings.ToLower(strings.TrimSpace(settings.SearchEngineURL)),
		"u=" + strings.ToLower(strings.TrimSpace(settings.APIURL)),
		"m=" + strings.ToLower(strings.TrimSpace(settings.Model)),
	}, "|")
}
