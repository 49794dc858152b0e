package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"tunehub/internal/domain"
	"tunehub/internal/ingest"
	"tunehub/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, query domain.Query, providers []string) (domain.SearchResponse, error)
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Resolver interface {
	Resolve(ctx context.Context, hit domain.Hit) (*domain.ResolvedMedia, error)
}

type IngestService interface {
	Submit(ctx context.Context, hit domain.Hit, transcode domain.Transcode) (domain.IngestJob, error)
	Job(ctx context.Context, id string) (domain.IngestJob, error)
}

type Server struct {
	search      SearchService
	resolver    Resolver
	ingest      IngestService
	logger      *slog.Logger
	corsOrigins []string
	rateLimit   float64
	rateBurst   int
}

type searchRequest struct {
	Artist           string   `json:"artist"`
	Album            string   `json:"album"`
	Track            string   `json:"track"`
	Year             int      `json:"year"`
	Strict           bool     `json:"strict"`
	PreferredFormats []string `json:"preferredFormats"`
	MinBitrateKbps   int      `json:"minBitrateKbps"`
	Limit            int      `json:"limit"`
	Providers        []string `json:"providers"`
}

type resolveRequest struct {
	Hit *domain.Hit `json:"hit"`
}

type ingestRequest struct {
	Hit       *domain.Hit      `json:"hit"`
	Transcode domain.Transcode `json:"transcode"`
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithResolver(resolver Resolver) ServerOption {
	return func(s *Server) {
		s.resolver = resolver
	}
}

func WithIngest(service IngestService) ServerOption {
	return func(s *Server) {
		s.ingest = service
	}
}

func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = append([]string(nil), origins...)
	}
}

// WithRateLimit overrides the global request limiter. A non-positive rps
// disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateLimit: 50,
		rateBurst: 100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/resolve", s.handleResolve)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/ingest/", s.handleIngestJob)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "tunehub",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)

	var handler http.Handler = metricsMiddleware(traced)
	if s.rateLimit > 0 {
		handler = rateLimitMiddleware(s.rateLimit, s.rateBurst, handler)
	}
	return recoveryMiddleware(s.logger, corsMiddleware(s.corsOrigins, handler))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	var body searchRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	query, err := body.query()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	providers := body.Providers
	if len(providers) == 0 {
		providers = parseCSV(r.URL.Query().Get("providers"))
	}

	response, err := s.search.Search(r.Context(), query, providers)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("terms", truncate(strings.Join(query.Terms(), " "), 80)),
			slog.Any("providers", providers),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrNoProviders):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	failedProviders := make([]string, 0, len(response.Providers))
	for _, providerStatus := range response.Providers {
		if !providerStatus.OK {
			failedProviders = append(failedProviders, providerStatus.Name)
		}
	}
	s.logger.Info("search completed",
		slog.String("terms", truncate(strings.Join(query.Terms(), " "), 80)),
		slog.Int("results", len(response.Results)),
		slog.Bool("cached", response.Cached),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedProviders", len(failedProviders)),
	)
	writeJSON(w, http.StatusOK, response)
}

// query validates the wire form. Unknown formats and negative numbers are
// rejected rather than silently dropped.
func (b searchRequest) query() (domain.Query, error) {
	if b.Year < 0 || b.MinBitrateKbps < 0 || b.Limit < 0 {
		return domain.Query{}, errors.New("year, minBitrateKbps and limit must not be negative")
	}
	query := domain.Query{
		Artist:         b.Artist,
		Album:          b.Album,
		Track:          b.Track,
		Year:           b.Year,
		Strict:         b.Strict,
		MinBitrateKbps: b.MinBitrateKbps,
		Limit:          b.Limit,
	}
	for _, raw := range b.PreferredFormats {
		format, ok := domain.ParseFormat(raw)
		if !ok {
			return domain.Query{}, fmt.Errorf("unknown format %q", raw)
		}
		query.PreferredFormats = append(query.PreferredFormats, format)
	}
	return query.Normalized(), nil
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "resolver is not configured")
		return
	}

	var body resolveRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if body.Hit == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "hit is required")
		return
	}

	media, err := s.resolver.Resolve(r.Context(), *body.Hit)
	switch {
	case errors.Is(err, domain.ErrInvalidHit):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, "upstream_error", "resolution failed, try again later")
	case media == nil:
		writeError(w, http.StatusNotFound, "unresolvable", "unable to resolve direct URL for this hit")
	default:
		writeJSON(w, http.StatusOK, media)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.ingest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "ingest is not configured")
		return
	}

	var body ingestRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if body.Hit == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "hit is required")
		return
	}

	job, err := s.ingest.Submit(r.Context(), *body.Hit, body.Transcode)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidHit), errors.Is(err, domain.ErrInvalidTranscode):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, ingest.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", "ingest queue is shutting down")
		default:
			s.logger.Error("ingest submit failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to enqueue job")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

func (s *Server) handleIngestJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.ingest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "ingest is not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/ingest/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	job, err := s.ingest.Job(r.Context(), id)
	if err != nil {
		if errors.Is(err, ingest.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	// Unknown keys are ignored: UI clients send hits back with their own
	// bookkeeping fields attached.
	if err := json.NewDecoder(bytes.NewReader(payload)).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
