package youtube

import (
	"context"
	"net/url"
	"strings"

	"tunehub/internal/domain"
	"tunehub/internal/ytdlp"
)

const (
	defaultTerms = "classical music"
	defaultLimit = 10
	maxLimit     = 25
	watchURL     = "https://www.youtube.com/watch"
)

// Searcher is the part of the yt-dlp client the adapter needs.
type Searcher interface {
	Search(ctx context.Context, terms string, limit int) ([]ytdlp.Entry, error)
}

type Provider struct {
	client Searcher
}

func NewProvider(client Searcher) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Name() string {
	return string(domain.SourceYouTube)
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:    p.Name(),
		Label:   "YouTube",
		Kind:    "video",
		Enabled: p.client != nil,
	}
}

// Search runs a flat ytsearch. Entries only carry a title, so the hit inherits
// the query's artist and album.
func (p *Provider) Search(ctx context.Context, query domain.Query) ([]domain.Hit, error) {
	if p.client == nil {
		return nil, nil
	}
	terms := strings.Join(query.Terms(), " ")
	if terms == "" {
		terms = defaultTerms
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	entries, err := p.client.Search(ctx, terms, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(entries))
	for _, entry := range entries {
		title := strings.TrimSpace(entry.Title)
		videoID := strings.TrimSpace(entry.ID)
		if videoID == "" {
			videoID = strings.TrimSpace(entry.URL)
		}
		if title == "" || videoID == "" {
			continue
		}
		hits = append(hits, domain.Hit{
			Source:      domain.SourceYouTube,
			Kind:        domain.KindTrack,
			Title:       title,
			Artist:      query.Artist,
			Album:       query.Album,
			DurationSec: entry.Duration,
			URLs:        []domain.MediaURL{{Page: WatchURL(videoID)}},
			Extra:       map[string]any{"videoId": videoID},
		})
	}
	return hits, nil
}

// WatchURL returns the watch page of a video id. Values that already are URLs
// are returned unchanged.
func WatchURL(videoID string) string {
	if strings.HasPrefix(videoID, "http://") || strings.HasPrefix(videoID, "https://") {
		return videoID
	}
	return watchURL + "?v=" + url.QueryEscape(videoID)
}
