package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"tunehub/internal/domain"
)

var (
	ErrNoProviders     = errors.New("no search adapters configured")
	ErrUnknownProvider = errors.New("unknown adapter")
)

// Adapter is one music source. Search must honor ctx and should return an
// error rather than block; the aggregator treats any error as zero hits.
type Adapter interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, query domain.Query) ([]domain.Hit, error)
}

type Service struct {
	adapters      map[string]Adapter
	order         []string
	aggregator    *Aggregator
	ranker        *Ranker
	logger        *slog.Logger
	cacheDisabled bool
	cacheTTL      time.Duration
	cacheMu       sync.Mutex
	cache         map[string]*cachedSearchResponse
	redisCache    *RedisCacheBackend
	flight        singleflight.Group

	retry         RetryConfig
	bucketSeconds int
	scorerOpts    []ScorerOption
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithDurationBucket sets the canonical key duration bucket width in seconds.
func WithDurationBucket(seconds int) ServiceOption {
	return func(s *Service) {
		s.bucketSeconds = seconds
	}
}

func WithScorerOptions(opts ...ScorerOption) ServiceOption {
	return func(s *Service) {
		s.scorerOpts = append(s.scorerOpts, opts...)
	}
}

// NewService registers adapters under their lower-cased names. The timeout
// bounds every single adapter call.
func NewService(adapters []Adapter, timeout time.Duration, opts ...ServiceOption) *Service {
	registry := make(map[string]Adapter, len(adapters))
	order := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := adapterKey(adapter)
		if name == "" {
			continue
		}
		if _, exists := registry[name]; exists {
			continue
		}
		registry[name] = adapter
		order = append(order, name)
	}

	svc := &Service{
		adapters: registry,
		order:    order,
		logger:   slog.Default(),
		cacheTTL: defaultCacheTTL,
		cache:    make(map[string]*cachedSearchResponse),
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.ranker = NewRanker(NewCanonicalizer(svc.bucketSeconds), NewScorer(svc.scorerOpts...))
	svc.aggregator = NewAggregator(timeout,
		WithAggregatorLogger(svc.logger),
		WithAggregatorRetry(svc.retry),
	)
	return svc
}

func adapterKey(adapter Adapter) string {
	return strings.ToLower(strings.TrimSpace(adapter.Name()))
}

func (s *Service) Providers() []domain.ProviderInfo {
	if len(s.adapters) == 0 {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(s.adapters))
	for _, name := range s.order {
		info := s.adapters[name].Info()
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			info.Name = name
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	infos := s.Providers()
	if len(infos) == 0 {
		return nil
	}
	items := make([]domain.ProviderDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Enabled: info.Enabled,
		}
		if state, ok := s.aggregator.health.snapshot(info.Name); ok {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}
	return items
}

// selectAdapters returns the named adapters in registration order, or all of
// them when names is empty.
func (s *Service) selectAdapters(names []string) ([]Adapter, error) {
	if len(s.adapters) == 0 {
		return nil, ErrNoProviders
	}
	if len(names) == 0 {
		all := make([]Adapter, 0, len(s.order))
		for _, name := range s.order {
			all = append(all, s.adapters[name])
		}
		return all, nil
	}

	wanted := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := s.adapters[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		wanted[name] = struct{}{}
	}
	selected := make([]Adapter, 0, len(wanted))
	for _, name := range s.order {
		if _, ok := wanted[name]; ok {
			selected = append(selected, s.adapters[name])
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoProviders
	}
	return selected, nil
}
