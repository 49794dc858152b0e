package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tunehub/internal/domain"
	"tunehub/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 400
)

type cachedSearchResponse struct {
	response  domain.SearchResponse
	updatedAt time.Time
	expiresAt time.Time
}

func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) (domain.SearchResponse, bool) {
	if s.redisCache != nil {
		resp, found, err := s.redisCache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("redis cache lookup failed", slog.String("error", err.Error()))
		}
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			return resp, true
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false
	}
	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneSearchResponse(entry.response), true
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	return domain.SearchResponse{}, false
}

func (s *Service) cacheStore(ctx context.Context, key string, response domain.SearchResponse, now time.Time) {
	ttl := s.cacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	if s.redisCache != nil {
		if err := s.redisCache.Set(ctx, key, response, ttl); err != nil {
			s.logger.Warn("redis cache store failed", slog.String("error", err.Error()))
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:  cloneSearchResponse(response),
		updatedAt: now,
		expiresAt: now.Add(ttl),
	}
	s.trimCacheLocked(now)
}

func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
		}
	}
	if len(s.cache) <= defaultCacheMaxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedSearchResponse
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-defaultCacheMaxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	if response.Results != nil {
		cloned.Results = make([]domain.Hit, len(response.Results))
		for i, hit := range response.Results {
			cloned.Results[i] = hit.Clone()
		}
	}
	if response.Scores != nil {
		cloned.Scores = append([]float64(nil), response.Scores...)
	}
	if response.Providers != nil {
		cloned.Providers = append([]domain.ProviderStatus(nil), response.Providers...)
	}
	return cloned
}

type searchCacheKey struct {
	Artist     string   `json:"a"`
	Album      string   `json:"al"`
	Track      string   `json:"t"`
	Year       int      `json:"y"`
	Strict     bool     `json:"s"`
	Formats    []string `json:"f"`
	MinBitrate int      `json:"mb"`
	Limit      int      `json:"l"`
	Adapters   []string `json:"p"`
}

// buildSearchCacheKey covers every query field that influences filtering or
// scoring, so a cached response is only ever served for the identical query.
// Field values are JSON encoded and cannot bleed into each other.
func buildSearchCacheKey(query domain.Query, adapters []string) string {
	formats := make([]string, 0, len(query.PreferredFormats))
	for _, format := range query.PreferredFormats {
		formats = append(formats, string(format))
	}
	key, _ := json.Marshal(searchCacheKey{
		Artist:     strings.ToLower(query.Artist),
		Album:      strings.ToLower(query.Album),
		Track:      strings.ToLower(query.Track),
		Year:       query.Year,
		Strict:     query.Strict,
		Formats:    formats,
		MinBitrate: query.MinBitrateKbps,
		Limit:      query.Limit,
		Adapters:   normalizeAdapterNames(adapters),
	})
	return string(key)
}

func normalizeAdapterNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
