package search

import (
	"context"
	"testing"

	"tunehub/internal/domain"
)

func TestRankKeepsBestClusterMember(t *testing.T) {
	ranker := NewRanker(Canonicalizer{}, NewScorer())
	hits := []domain.Hit{
		{Source: domain.SourceYouTube, Kind: domain.KindTrack, Title: "Blue in Green", Artist: "Miles Davis", DurationSec: 337},
		{Source: domain.SourceArchive, Kind: domain.KindTrack, Title: "Blue in Green", Artist: "Miles Davis", Format: "FLAC", DurationSec: 337.4},
		{Source: domain.SourceArchive, Kind: domain.KindTrack, Title: "All Blues", Artist: "Miles Davis", Format: "MP3", DurationSec: 693},
	}
	ranked := ranker.Rank(hits, domain.Query{Artist: "Miles Davis", Track: "Blue in Green"})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 representatives, got %d", len(ranked))
	}
	if ranked[0].Hit.Source != domain.SourceArchive || ranked[0].Hit.Title != "Blue in Green" {
		t.Fatalf("expected archive FLAC as top result, got %+v", ranked[0].Hit)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatalf("scores not sorted: %v > %v", ranked[i].Score, ranked[i-1].Score)
		}
	}
}

func TestRankTiesKeepFirstSeen(t *testing.T) {
	ranker := NewRanker(Canonicalizer{}, NewScorer())
	first := domain.Hit{Source: domain.SourceArchive, Title: "Take Five", Artist: "Dave Brubeck", URLs: []domain.MediaURL{{Page: "first"}}}
	second := first
	second.URLs = []domain.MediaURL{{Page: "second"}}
	ranked := ranker.Rank([]domain.Hit{first, second}, domain.Query{Track: "Take Five"})
	if len(ranked) != 1 || ranked[0].Hit.PageURL() != "first" {
		t.Fatalf("tie should keep the first-seen member, got %+v", ranked)
	}

	other := domain.Hit{Source: domain.SourceArchive, Title: "Blue Rondo", Artist: "Dave Brubeck"}
	ranked = ranker.Rank([]domain.Hit{other, first}, domain.Query{})
	if ranked[0].Hit.Title != "Blue Rondo" {
		t.Fatalf("equal global scores should keep cluster order, got %q", ranked[0].Hit.Title)
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	ranker := NewRanker(Canonicalizer{}, NewScorer())
	hits := make([]domain.Hit, 0, 40)
	for i := 0; i < 40; i++ {
		hits = append(hits, domain.Hit{Source: domain.SourceArchive, Title: "Track", Artist: "Artist", DurationSec: float64(i * 10)})
	}
	if got := len(ranker.Rank(hits, domain.Query{Limit: 7})); got != 7 {
		t.Fatalf("expected 7 results, got %d", got)
	}
	if got := len(ranker.Rank(hits, domain.Query{})); got != domain.DefaultSearchLimit {
		t.Fatalf("expected default limit %d, got %d", domain.DefaultSearchLimit, got)
	}
	if got := ranker.Rank(nil, domain.Query{}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
}

func TestRankFilters(t *testing.T) {
	ranker := NewRanker(Canonicalizer{}, NewScorer())
	hits := []domain.Hit{
		{Source: domain.SourceArchive, Title: "Naima", Artist: "John Coltrane", Format: "MP3", BitrateKbps: 96, Year: 1959},
		{Source: domain.SourceArchive, Title: "Naima", Artist: "John Coltrane", Format: "FLAC", Year: 1961, DurationSec: 260},
		{Source: domain.SourceYouTube, Title: "Giant Steps", Artist: "John Coltrane", DurationSec: 290},
		{Source: domain.SourceArchive, Title: "Unrelated", Artist: "Somebody", DurationSec: 100},
	}

	ranked := ranker.Rank(hits, domain.Query{Track: "Naima", MinBitrateKbps: 128})
	for _, item := range ranked {
		if item.Hit.BitrateKbps > 0 && item.Hit.BitrateKbps < 128 {
			t.Fatalf("bitrate floor not applied: %+v", item.Hit)
		}
	}
	if len(ranked) != 3 {
		t.Fatalf("unknown bitrates must not filter, got %d results", len(ranked))
	}

	strict := ranker.Rank(hits, domain.Query{
		Artist:           "John Coltrane",
		Track:            "Naima",
		Year:             1959,
		Strict:           true,
		PreferredFormats: []domain.Format{domain.FormatMP3},
	})
	if len(strict) != 2 {
		t.Fatalf("expected 2 strict results, got %+v", strict)
	}
	for _, item := range strict {
		if item.Hit.Title == "Unrelated" || item.Hit.Format == "FLAC" {
			t.Fatalf("strict filter let through %+v", item.Hit)
		}
	}
}

type stubAdapter struct {
	name string
	hits []domain.Hit
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: a.name, Label: a.name, Kind: "test", Enabled: true}
}

func (a *stubAdapter) Search(context.Context, domain.Query) ([]domain.Hit, error) {
	out := make([]domain.Hit, len(a.hits))
	copy(out, a.hits)
	return out, nil
}

func TestSearchEndToEndPrefersLossless(t *testing.T) {
	adapter := &stubAdapter{name: "stub", hits: []domain.Hit{
		{Source: domain.SourceArchive, Kind: domain.KindTrack, Title: "So What", Artist: "Miles Davis", Format: "MP3", BitrateKbps: 128, DurationSec: 562.3},
		{Source: domain.SourceArchive, Kind: domain.KindTrack, Title: "So What", Artist: "Miles Davis", Format: "FLAC", BitrateKbps: 900, DurationSec: 561.8},
	}}
	svc := NewService([]Adapter{adapter}, 0, WithCacheDisabled(true))

	resp, err := svc.Search(context.Background(), domain.Query{Artist: "Miles Davis", Track: "So What", Limit: 5}, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected exactly one ranked result, got %d", len(resp.Results))
	}
	if resp.Results[0].Format != "FLAC" {
		t.Fatalf("expected the FLAC hit, got %+v", resp.Results[0])
	}
	// relevance 0.45*0.9, format 0.25*1, trust 0.15*0.9, completeness 0.10*0.6, bitrate 0.05*1
	if !almostEqual(resp.Scores[0], 0.9) {
		t.Fatalf("expected score 0.9, got %v", resp.Scores[0])
	}
	if len(resp.Providers) != 1 || !resp.Providers[0].OK || resp.Providers[0].Count != 2 {
		t.Fatalf("unexpected provider statuses: %+v", resp.Providers)
	}
}
