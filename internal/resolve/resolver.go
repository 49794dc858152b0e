// Package resolve turns a chosen hit into a directly fetchable media URL.
//
// Every source has its own Strategy. A nil result with a nil error means the
// hit is unresolvable, which is a normal outcome; errors are reserved for
// failures that may succeed when retried.
package resolve

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"tunehub/internal/domain"
	"tunehub/internal/metrics"
	"tunehub/internal/telemetry"
)

type Strategy interface {
	Source() domain.Source
	Resolve(ctx context.Context, hit domain.Hit) (*domain.ResolvedMedia, error)
}

// Resolver dispatches on hit.Source. Results are never cached since direct
// URLs may be short lived or signed.
type Resolver struct {
	strategies map[domain.Source]Strategy
	logger     *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(strategies []Strategy, opts ...Option) *Resolver {
	r := &Resolver{
		strategies: make(map[domain.Source]Strategy, len(strategies)),
		logger:     slog.Default(),
	}
	for _, strategy := range strategies {
		if strategy != nil {
			r.strategies[strategy.Source()] = strategy
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supports reports whether a strategy is registered for source.
func (r *Resolver) Supports(source domain.Source) bool {
	_, ok := r.strategies[source]
	return ok
}

func (r *Resolver) Resolve(ctx context.Context, hit domain.Hit) (*domain.ResolvedMedia, error) {
	if err := hit.Validate(); err != nil {
		return nil, err
	}
	source := string(hit.Source)
	strategy, ok := r.strategies[hit.Source]
	if !ok {
		metrics.ResolveTotal.WithLabelValues(source, "unresolvable").Inc()
		return nil, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "resolve",
		trace.WithAttributes(attribute.String("source", source)))
	defer span.End()

	media, err := strategy.Resolve(ctx, hit)
	switch {
	case err != nil:
		metrics.ResolveTotal.WithLabelValues(source, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("resolve failed",
			slog.String("source", source),
			slog.String("title", hit.Title),
			slog.String("error", err.Error()),
		)
		return nil, err
	case media == nil || media.DirectURL == "":
		metrics.ResolveTotal.WithLabelValues(source, "unresolvable").Inc()
		span.SetAttributes(attribute.Bool("resolved", false))
		return nil, nil
	default:
		metrics.ResolveTotal.WithLabelValues(source, "resolved").Inc()
		span.SetAttributes(attribute.Bool("resolved", true))
		return media, nil
	}
}
