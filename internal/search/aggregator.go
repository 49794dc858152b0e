package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"tunehub/internal/domain"
	"tunehub/internal/telemetry"
)

const defaultAdapterTimeout = 15 * time.Second

// Aggregator fans a query out to adapters concurrently. Adapter failures,
// timeouts and panics are contained: the adapter contributes zero hits and the
// failure only shows up in its ProviderStatus.
type Aggregator struct {
	timeout time.Duration
	retry   RetryConfig
	health  *healthTracker
	logger  *slog.Logger
	now     func() time.Time
}

type AggregatorOption func(*Aggregator)

func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithAggregatorRetry(cfg RetryConfig) AggregatorOption {
	return func(a *Aggregator) {
		a.retry = cfg
	}
}

func NewAggregator(timeout time.Duration, opts ...AggregatorOption) *Aggregator {
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}
	a := &Aggregator{
		timeout: timeout,
		retry:   DefaultRetryConfig(),
		health:  newHealthTracker(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate waits for every adapter to settle and returns the union of their
// hits in adapter order, followed by one status per adapter.
func (a *Aggregator) Aggregate(ctx context.Context, query domain.Query, adapters []Adapter) ([]domain.Hit, []domain.ProviderStatus) {
	perAdapter := make([][]domain.Hit, len(adapters))
	statuses := make([]domain.ProviderStatus, len(adapters))

	var g errgroup.Group
	for i, adapter := range adapters {
		g.Go(func() error {
			perAdapter[i], statuses[i] = a.searchOne(ctx, query, adapter)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, hits := range perAdapter {
		total += len(hits)
	}
	merged := make([]domain.Hit, 0, total)
	for _, hits := range perAdapter {
		merged = append(merged, hits...)
	}
	return merged, statuses
}

func (a *Aggregator) searchOne(ctx context.Context, query domain.Query, adapter Adapter) (hits []domain.Hit, status domain.ProviderStatus) {
	name := adapterKey(adapter)
	status = domain.ProviderStatus{Name: name}

	if blocked, until, lastErr := a.health.isBlocked(name, a.now()); blocked {
		status.Error = fmt.Sprintf("adapter temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr)
		return nil, status
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.adapter",
		trace.WithAttributes(attribute.String("adapter", name)))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	startedAt := a.now()
	err := RetryWithBackoff(runCtx, a.retry, func() error {
		var callErr error
		hits, callErr = a.call(runCtx, adapter, query)
		return callErr
	})
	a.health.record(name, err, time.Since(startedAt), a.now())

	if err != nil {
		a.logger.Warn("adapter search failed",
			slog.String("adapter", name),
			slog.String("error", err.Error()),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status.Error = err.Error()
		return nil, status
	}

	valid := make([]domain.Hit, 0, len(hits))
	for _, hit := range hits {
		if hit.Validate() != nil {
			continue
		}
		valid = append(valid, hit)
	}
	span.SetAttributes(attribute.Int("hits", len(valid)))
	status.OK = true
	status.Count = len(valid)
	return valid, status
}

// call converts an adapter panic into an error.
func (a *Aggregator) call(ctx context.Context, adapter Adapter, query domain.Query) (hits []domain.Hit, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			hits = nil
			err = fmt.Errorf("adapter panic: %v", recovered)
		}
	}()
	return adapter.Search(ctx, query)
}

// Search aggregates, clusters and ranks. Identical concurrent queries share
// one aggregation; completed responses are cached per exact query.
func (s *Service) Search(ctx context.Context, query domain.Query, adapterNames []string) (domain.SearchResponse, error) {
	query = query.Normalized()
	selected, err := s.selectAdapters(adapterNames)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	startedAt := time.Now()
	if s.cacheDisabled {
		return s.execute(ctx, query, selected), nil
	}

	cacheKey := buildSearchCacheKey(query, selectedNames(selected))
	if cached, ok := s.cacheLookup(ctx, cacheKey, startedAt); ok {
		cached.Cached = true
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	value, _, _ := s.flight.Do(cacheKey, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail the others.
		detached := context.WithoutCancel(ctx)
		response := s.execute(detached, query, selected)
		s.cacheStore(detached, cacheKey, response, time.Now())
		return response, nil
	})
	response := cloneSearchResponse(value.(domain.SearchResponse))
	response.ElapsedMS = time.Since(startedAt).Milliseconds()
	return response, nil
}

func (s *Service) execute(ctx context.Context, query domain.Query, adapters []Adapter) domain.SearchResponse {
	startedAt := time.Now()
	hits, statuses := s.aggregator.Aggregate(ctx, query, adapters)
	ranked := s.ranker.Rank(hits, query)

	response := domain.SearchResponse{
		Results:   make([]domain.Hit, 0, len(ranked)),
		Scores:    make([]float64, 0, len(ranked)),
		Providers: statuses,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
	}
	for _, item := range ranked {
		response.Results = append(response.Results, item.Hit)
		response.Scores = append(response.Scores, item.Score)
	}
	s.logger.Debug("search completed",
		slog.Int("rawHits", len(hits)),
		slog.Int("results", len(response.Results)),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	return response
}

func selectedNames(adapters []Adapter) []string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapterKey(adapter))
	}
	return names
}
