package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"tunehub/internal/domain"
	"tunehub/internal/search"
)

const (
	defaultEndpoint  = "https://archive.org/advancedsearch.php"
	defaultUserAgent = "tunehub/1.0"
	defaultRows      = 25
	maxRows          = 50
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
	// RequestsPerSecond throttles calls to the search API; 0 means 1 rps.
	RequestsPerSecond float64
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
}

type searchResponse struct {
	Response struct {
		Docs []doc `json:"docs"`
	} `json:"response"`
}

// doc fields are loosely typed by the API: strings, numbers or lists.
type doc struct {
	Identifier string          `json:"identifier"`
	Title      json.RawMessage `json:"title"`
	Creator    json.RawMessage `json:"creator"`
	Year       json.RawMessage `json:"year"`
	Format     json.RawMessage `json:"format"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Provider{
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), 2),
	}
}

func (p *Provider) Name() string {
	return string(domain.SourceArchive)
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "Internet Archive",
		Kind:    "library",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, query domain.Query) ([]domain.Hit, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rows := query.Limit
	if rows <= 0 {
		rows = defaultRows
	}
	if rows > maxRows {
		rows = maxRows
	}

	params := uri.Query()
	params.Set("q", buildQuery(query))
	for _, field := range []string{"identifier", "title", "creator", "year", "format"} {
		params.Add("fl[]", field)
	}
	params.Set("sort[]", "downloads desc")
	params.Set("rows", strconv.Itoa(rows))
	params.Set("output", "json")
	uri.RawQuery = params.Encode()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, &search.StatusError{Source: p.Name(), Code: resp.StatusCode}
	}

	var payload searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4*1024*1024)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode archive response: %w", err)
	}

	hits := make([]domain.Hit, 0, len(payload.Response.Docs))
	for _, item := range payload.Response.Docs {
		if hit, ok := p.toHit(item); ok {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// buildQuery joins the audio media type with creator and title terms.
func buildQuery(query domain.Query) string {
	terms := []string{"mediatype:(audio)"}
	if artist := escape(query.Artist); artist != "" {
		terms = append(terms, "creator:("+artist+")")
	}
	if album := escape(query.Album); album != "" {
		terms = append(terms, "title:("+album+")")
	}
	if track := escape(query.Track); track != "" {
		terms = append(terms, "title:("+track+")")
	}
	return strings.Join(terms, " AND ")
}

func escape(value string) string {
	return strings.TrimSpace(strings.NewReplacer(`"`, " ", `\`, " ").Replace(value))
}

func (p *Provider) toHit(item doc) (domain.Hit, bool) {
	identifier := strings.TrimSpace(item.Identifier)
	if identifier == "" {
		return domain.Hit{}, false
	}
	title := firstString(item.Title)
	if title == "" {
		title = identifier
	}
	return domain.Hit{
		Source: domain.SourceArchive,
		Kind:   domain.KindTrack,
		Title:  title,
		Artist: firstString(item.Creator),
		Year:   parseYear(item.Year),
		URLs:   []domain.MediaURL{{Page: p.detailsURL(identifier)}},
		Format: bestFormat(stringList(item.Format)),
		Extra:  map[string]any{"identifier": identifier},
	}, true
}

func (p *Provider) detailsURL(identifier string) string {
	base, err := url.Parse(p.endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		base = &url.URL{Scheme: "https", Host: "archive.org"}
	}
	detail := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/details/" + identifier}
	return detail.String()
}

// bestFormat picks the highest quality label among the item's formats, or ""
// when none is a recognizable audio format.
func bestFormat(formats []string) string {
	best, bestScore := "", search.FormatQuality("")
	for _, format := range formats {
		if score := search.FormatQuality(format); score > bestScore {
			best, bestScore = format, score
		}
	}
	return best
}

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, value := range list {
			if value = strings.TrimSpace(value); value != "" {
				out = append(out, value)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return []string{strings.TrimSpace(single)}
	}
	return nil
}

func firstString(raw json.RawMessage) string {
	if values := stringList(raw); len(values) > 0 {
		return values[0]
	}
	return ""
}

func parseYear(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return int(number)
	}
	text := firstString(raw)
	if len(text) >= 4 {
		text = text[:4]
	}
	year, err := strconv.Atoi(text)
	if err != nil || year <= 0 {
		return 0
	}
	return year
}
