package search

import (
	"math"
	"testing"

	"tunehub/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFormatQuality(t *testing.T) {
	tests := []struct {
		format string
		want   float64
	}{
		{"FLAC", 1},
		{"Flac 24bit", 1},
		{"wav", 1},
		{"MP3 320", 0.8},
		{"320Kbps", 0.8},
		{"VBR MP3", 0.6},
		{"Ogg Vorbis", 0.4},
		{"", 0.4},
	}
	for _, tt := range tests {
		if got := FormatQuality(tt.format); got != tt.want {
			t.Errorf("FormatQuality(%q) = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestBitrateScore(t *testing.T) {
	if BitrateScore(0) != 0.5 {
		t.Fatal("absent bitrate should default to 0.5")
	}
	if BitrateScore(160) != 0.5 {
		t.Fatalf("160kbps: %v", BitrateScore(160))
	}
	if BitrateScore(1411) != 1 {
		t.Fatal("bitrate factor must cap at 1")
	}
}

func TestScoreWeighting(t *testing.T) {
	scorer := NewScorer()
	query := domain.Query{Artist: "Miles Davis", Track: "So What"}
	hit := domain.Hit{
		Source:      domain.SourceArchive,
		Kind:        domain.KindTrack,
		Title:       "So What",
		Artist:      "Miles Davis",
		Format:      "FLAC",
		BitrateKbps: 900,
	}
	// 0.45*0.9 + 0.25*1 + 0.15*0.9 + 0.10*0.6 + 0.05*1
	if got := scorer.Score(hit, query); !almostEqual(got, 0.9) {
		t.Fatalf("expected 0.9, got %v", got)
	}

	album := hit
	album.Kind = domain.KindAlbum
	album.Source = domain.SourceCustom
	album.BitrateKbps = 0
	// 0.405 + 0.25 + 0.15*0.6 + 0.10*0.9 + 0.05*0.5
	if got := scorer.Score(album, query); !almostEqual(got, 0.86) {
		t.Fatalf("expected 0.86, got %v", got)
	}
}

func TestScoreFLACBeatsMP3(t *testing.T) {
	scorer := NewScorer()
	query := domain.Query{Artist: "Nina Simone", Track: "Feeling Good"}
	flac := domain.Hit{Source: domain.SourceArchive, Kind: domain.KindTrack, Title: "Feeling Good", Artist: "Nina Simone", Format: "FLAC", BitrateKbps: 256}
	mp3 := flac
	mp3.Format = "MP3"
	if scorer.Score(flac, query) <= scorer.Score(mp3, query) {
		t.Fatal("FLAC hit should score strictly higher than the MP3 hit")
	}
}

func TestScoreDeterministicAndBounded(t *testing.T) {
	scorer := NewScorer(WithWeights(Weights{Relevance: 5, Format: 5, Trust: 5, Completeness: 5, Bitrate: 5}))
	query := domain.Query{Artist: "a", Album: "b", Track: "c"}
	hit := domain.Hit{Source: domain.SourceLocal, Kind: domain.KindAlbum, Title: "c", Artist: "a", Album: "b", Format: "FLAC", BitrateKbps: 1000}
	first := scorer.Score(hit, query)
	if first != scorer.Score(hit, query) {
		t.Fatal("score must be deterministic")
	}
	if first < 0 || first > 1 {
		t.Fatalf("score out of range: %v", first)
	}

	empty := NewScorer().Score(domain.Hit{}, domain.Query{})
	if empty < 0 || empty > 1 {
		t.Fatalf("score out of range: %v", empty)
	}
}

func TestRelevanceClampedToOne(t *testing.T) {
	scorer := NewScorer()
	query := domain.Query{Artist: "x", Album: "y", Track: "z"}
	hit := domain.Hit{Title: "z", Artist: "x", Album: "y"}
	if got := scorer.Relevance(hit, query); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
	if got := scorer.Relevance(domain.Hit{Title: "z"}, domain.Query{Artist: "x"}); got != 0 {
		t.Fatalf("missing fields contribute 0, got %v", got)
	}
}

func TestTrustOverrides(t *testing.T) {
	scorer := NewScorer(WithTrust(map[domain.Source]float64{domain.SourceYouTube: 0.7}))
	if scorer.Trust(domain.SourceYouTube) != 0.7 {
		t.Fatal("override not applied")
	}
	if scorer.Trust(domain.SourceLocal) != 0.95 || scorer.Trust("elsewhere") != 0.6 {
		t.Fatal("defaults should remain")
	}
}

func TestWeightsNormalized(t *testing.T) {
	if got := (Weights{}).Normalized(); got != DefaultWeights() {
		t.Fatalf("zero weights should fall back to defaults, got %+v", got)
	}
	got := Weights{Relevance: -1, Format: 1}.Normalized()
	if got.Relevance != 0 || got.Format != 1 {
		t.Fatalf("unexpected normalization: %+v", got)
	}
}
