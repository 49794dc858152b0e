package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tunehub/internal/domain"
	"tunehub/internal/ingest"
	"tunehub/internal/search"
)

type fakeSearchService struct {
	lastProviders []string
	lastQuery     domain.Query
	callCount     int
	err           error
}

func (f *fakeSearchService) Search(_ context.Context, query domain.Query, providers []string) (domain.SearchResponse, error) {
	f.callCount++
	f.lastProviders = append([]string(nil), providers...)
	f.lastQuery = query
	if f.err != nil {
		return domain.SearchResponse{}, f.err
	}
	return domain.SearchResponse{
		Results:   []domain.Hit{{Source: domain.SourceArchive, Kind: domain.KindTrack, Title: query.Track + "-result"}},
		Scores:    []float64{0.8},
		Providers: []domain.ProviderStatus{{Name: "archive", OK: true, Count: 1}},
		ElapsedMS: 3,
	}, nil
}

func (f *fakeSearchService) Providers() []domain.ProviderInfo {
	return []domain.ProviderInfo{
		{Name: "archive", Label: "Internet Archive", Kind: "library", Enabled: true},
		{Name: "youtube", Label: "YouTube", Kind: "video", Enabled: true},
	}
}

func (f *fakeSearchService) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return []domain.ProviderDiagnostics{
		{Name: "archive", Label: "Internet Archive", Enabled: true, LastLatencyMS: 120},
		{Name: "youtube", Label: "YouTube", Enabled: true, LastLatencyMS: 80},
	}
}

type fakeResolver struct {
	media *domain.ResolvedMedia
	err   error
}

func (f fakeResolver) Resolve(_ context.Context, hit domain.Hit) (*domain.ResolvedMedia, error) {
	if err := hit.Validate(); err != nil {
		return nil, err
	}
	return f.media, f.err
}

type fakeIngest struct {
	jobs map[string]domain.IngestJob
	err  error
}

func (f *fakeIngest) Submit(_ context.Context, hit domain.Hit, transcode domain.Transcode) (domain.IngestJob, error) {
	if f.err != nil {
		return domain.IngestJob{}, f.err
	}
	if err := hit.Validate(); err != nil {
		return domain.IngestJob{}, err
	}
	if _, err := domain.ParseTranscode(string(transcode)); err != nil {
		return domain.IngestJob{}, err
	}
	job := domain.IngestJob{ID: fmt.Sprintf("job-%d", len(f.jobs)+1), Hit: hit, State: domain.JobQueued}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeIngest) Job(_ context.Context, id string) (domain.IngestJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return domain.IngestJob{}, ingest.ErrJobNotFound
	}
	return job, nil
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return payload.Error.Code
}

func TestRootAndHealth(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()
	if rec := do(t, handler, http.MethodGet, "/", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("root: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, handler, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", rec.Code)
	}
}

func TestSearchWithoutService(t *testing.T) {
	rec := do(t, NewServer(nil).Handler(), http.MethodPost, "/search", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSearchRejectsGet(t *testing.T) {
	rec := do(t, NewServer(&fakeSearchService{}).Handler(), http.MethodGet, "/search", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSearchParsesBody(t *testing.T) {
	fake := &fakeSearchService{}
	handler := NewServer(fake).Handler()
	rec := do(t, handler, http.MethodPost, "/search?providers=youtube,archive,youtube",
		`{"artist":" Miles Davis ","track":"So What","preferredFormats":["flac","MP3"],"limit":5,"strict":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if fake.lastQuery.Artist != "Miles Davis" || fake.lastQuery.Limit != 5 || !fake.lastQuery.Strict {
		t.Fatalf("unexpected query: %+v", fake.lastQuery)
	}
	if len(fake.lastQuery.PreferredFormats) != 2 || fake.lastQuery.PreferredFormats[0] != domain.FormatFLAC {
		t.Fatalf("unexpected formats: %v", fake.lastQuery.PreferredFormats)
	}
	if len(fake.lastProviders) != 2 || fake.lastProviders[0] != "youtube" || fake.lastProviders[1] != "archive" {
		t.Fatalf("unexpected providers: %#v", fake.lastProviders)
	}

	var payload domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].Title != "So What-result" {
		t.Fatalf("unexpected results: %+v", payload.Results)
	}
}

func TestSearchEmptyBodyUsesDefaults(t *testing.T) {
	fake := &fakeSearchService{}
	rec := do(t, NewServer(fake).Handler(), http.MethodPost, "/search", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fake.lastQuery.Limit != domain.DefaultSearchLimit {
		t.Fatalf("limit = %d", fake.lastQuery.Limit)
	}
}

func TestSearchValidation(t *testing.T) {
	fake := &fakeSearchService{}
	handler := NewServer(fake).Handler()
	for _, body := range []string{
		`{"preferredFormats":["OGG"]}`,
		`{"limit":-1}`,
		`{"year":-4}`,
		`{"artist":`,
	} {
		rec := do(t, handler, http.MethodPost, "/search", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
	if fake.callCount != 0 {
		t.Fatalf("search called for invalid requests")
	}
}

func TestSearchErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: nope", search.ErrUnknownProvider), http.StatusBadRequest},
		{search.ErrNoProviders, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := do(t, NewServer(&fakeSearchService{err: tt.err}).Handler(), http.MethodPost, "/search", `{}`)
		if rec.Code != tt.code {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.code, rec.Code)
		}
	}
}

func TestSearchProvidersEndpoints(t *testing.T) {
	handler := NewServer(&fakeSearchService{}).Handler()

	rec := do(t, handler, http.MethodGet, "/search/providers", "")
	var providers struct {
		Items []domain.ProviderInfo `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &providers); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Code != http.StatusOK || len(providers.Items) != 2 {
		t.Fatalf("providers: %d %d", rec.Code, len(providers.Items))
	}

	rec = do(t, handler, http.MethodGet, "/search/providers/health", "")
	var health struct {
		Items []domain.ProviderDiagnostics `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Code != http.StatusOK || len(health.Items) != 2 {
		t.Fatalf("health: %d %d", rec.Code, len(health.Items))
	}
}

const validHitJSON = `{"source":"archive","kind":"track","title":"So What","urls":[],"extra":{"identifier":"kob"}}`

func TestResolveOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		resolver fakeResolver
		body     string
		code     int
		errCode  string
	}{
		{"resolved", fakeResolver{media: &domain.ResolvedMedia{DirectURL: "https://cdn/x.flac", Filename: "x.flac"}}, `{"hit":` + validHitJSON + `}`, http.StatusOK, ""},
		{"unresolvable", fakeResolver{}, `{"hit":` + validHitJSON + `}`, http.StatusNotFound, "unresolvable"},
		{"upstream", fakeResolver{err: errors.New("manifest 503")}, `{"hit":` + validHitJSON + `}`, http.StatusBadGateway, "upstream_error"},
		{"invalid hit", fakeResolver{}, `{"hit":{"source":"archive"}}`, http.StatusBadRequest, "invalid_request"},
		{"missing hit", fakeResolver{}, `{}`, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewServer(&fakeSearchService{}, WithResolver(tt.resolver)).Handler()
			rec := do(t, handler, http.MethodPost, "/resolve", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			if tt.errCode != "" && errorCode(t, rec) != tt.errCode {
				t.Fatalf("error code = %s, want %s", errorCode(t, rec), tt.errCode)
			}
			if tt.code == http.StatusOK {
				var media domain.ResolvedMedia
				if err := json.Unmarshal(rec.Body.Bytes(), &media); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if media.DirectURL != "https://cdn/x.flac" {
					t.Fatalf("directUrl = %q", media.DirectURL)
				}
			}
		})
	}
}

func TestIngestSubmitAndStatus(t *testing.T) {
	fake := &fakeIngest{jobs: map[string]domain.IngestJob{}}
	handler := NewServer(&fakeSearchService{}, WithIngest(fake)).Handler()

	rec := do(t, handler, http.MethodPost, "/ingest", `{"hit":`+validHitJSON+`,"transcode":"aac320"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var submitted struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil || submitted.JobID == "" {
		t.Fatalf("missing jobId: %s", rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, "/ingest/"+submitted.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var job domain.IngestJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID != submitted.JobID || job.State != domain.JobQueued {
		t.Fatalf("unexpected job %+v", job)
	}

	if rec := do(t, handler, http.MethodGet, "/ingest/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job: %d", rec.Code)
	}
}

func TestIngestRejectsInvalidPayload(t *testing.T) {
	fake := &fakeIngest{jobs: map[string]domain.IngestJob{}}
	handler := NewServer(&fakeSearchService{}, WithIngest(fake)).Handler()
	for _, body := range []string{
		`{}`,
		`{"hit":{"title":"no source"}}`,
		`{"hit":` + validHitJSON + `,"transcode":"ogg"}`,
	} {
		if rec := do(t, handler, http.MethodPost, "/ingest", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
	if len(fake.jobs) != 0 {
		t.Fatalf("invalid payload was enqueued")
	}

	closed := &fakeIngest{jobs: map[string]domain.IngestJob{}, err: ingest.ErrQueueClosed}
	rec := do(t, NewServer(&fakeSearchService{}, WithIngest(closed)).Handler(), http.MethodPost, "/ingest", `{"hit":`+validHitJSON+`}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed queue: %d", rec.Code)
	}
}

func TestUnknownFieldsAreIgnored(t *testing.T) {
	fake := &fakeIngest{jobs: map[string]domain.IngestJob{}}
	handler := NewServer(&fakeSearchService{}, WithIngest(fake)).Handler()

	hitWithUIFields := `{"source":"archive","kind":"track","title":"So What","urls":[],"id":"row-3","score":0.91}`
	if rec := do(t, handler, http.MethodPost, "/ingest", `{"hit":`+hitWithUIFields+`,"origin":"ui"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("ingest with extra keys: %d %s", rec.Code, rec.Body.String())
	}
	if len(fake.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(fake.jobs))
	}
	if rec := do(t, handler, http.MethodPost, "/search", `{"artist":"Miles Davis","page":2}`); rec.Code != http.StatusOK {
		t.Fatalf("search with extra keys: %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	handler := NewServer(&fakeSearchService{}, WithCORSOrigins([]string{"http://localhost:5173"})).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

type panickingSearch struct{ fakeSearchService }

func (p *panickingSearch) Search(context.Context, domain.Query, []string) (domain.SearchResponse, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	rec := do(t, NewServer(&panickingSearch{}).Handler(), http.MethodPost, "/search", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	handler := NewServer(&fakeSearchService{}, WithRateLimit(1, 1)).Handler()
	if rec := do(t, handler, http.MethodGet, "/search/providers", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/search/providers", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must bypass the limiter: %d", rec.Code)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/search":                  "/search",
		"/search/providers/health": "/search/providers",
		"/ingest/abc":              "/ingest/{id}",
		"/ingest":                  "/ingest",
		"/random":                  "/other",
	}
	for path, want := range tests {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
