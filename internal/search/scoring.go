package search

import (
	"math"
	"strings"

	"tunehub/internal/domain"
)

// Weights are the factor weights of Score. They are expected to sum to 1; the
// final score is clamped to [0,1] regardless.
type Weights struct {
	Relevance    float64 `json:"relevance" toml:"relevance"`
	Format       float64 `json:"format" toml:"format"`
	Trust        float64 `json:"trust" toml:"trust"`
	Completeness float64 `json:"completeness" toml:"completeness"`
	Bitrate      float64 `json:"bitrate" toml:"bitrate"`
}

func DefaultWeights() Weights {
	return Weights{
		Relevance:    0.45,
		Format:       0.25,
		Trust:        0.15,
		Completeness: 0.10,
		Bitrate:      0.05,
	}
}

// Normalized replaces negative weights with 0 and falls back to the defaults
// when every weight is 0.
func (w Weights) Normalized() Weights {
	out := Weights{
		Relevance:    nonNegative(w.Relevance),
		Format:       nonNegative(w.Format),
		Trust:        nonNegative(w.Trust),
		Completeness: nonNegative(w.Completeness),
		Bitrate:      nonNegative(w.Bitrate),
	}
	if out.Relevance+out.Format+out.Trust+out.Completeness+out.Bitrate == 0 {
		return DefaultWeights()
	}
	return out
}

// Per-field relevance weights: track against title, artist, album.
const (
	trackFieldWeight  = 0.5
	artistFieldWeight = 0.4
	albumFieldWeight  = 0.3
)

const (
	defaultTrust         = 0.6
	absentBitrateScore   = 0.5
	referenceBitrateKbps = 320
)

func DefaultTrust() map[domain.Source]float64 {
	return map[domain.Source]float64{
		domain.SourceLocal:   0.95,
		domain.SourceArchive: 0.9,
	}
}

// Scorer computes the weighted relevance and quality score of a hit for a
// query. It is safe for concurrent use once constructed.
type Scorer struct {
	weights      Weights
	trust        map[domain.Source]float64
	defaultTrust float64
}

type ScorerOption func(*Scorer)

func WithWeights(weights Weights) ScorerOption {
	return func(s *Scorer) {
		s.weights = weights.Normalized()
	}
}

// WithTrust overrides trust constants per source. Sources not listed keep
// their default.
func WithTrust(trust map[domain.Source]float64) ScorerOption {
	return func(s *Scorer) {
		for source, value := range trust {
			s.trust[source] = clamp01(value)
		}
	}
}

func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		weights:      DefaultWeights(),
		trust:        DefaultTrust(),
		defaultTrust: defaultTrust,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score is deterministic and always within [0,1].
func (s *Scorer) Score(hit domain.Hit, query domain.Query) float64 {
	w := s.weights
	total := w.Relevance*s.Relevance(hit, query) +
		w.Format*FormatQuality(hit.Format) +
		w.Trust*s.Trust(hit.Source) +
		w.Completeness*Completeness(hit.Kind) +
		w.Bitrate*BitrateScore(hit.BitrateKbps)
	return clamp01(total)
}

// Relevance sums per-field Jaccard similarities between the query terms and the
// hit fields, clamped to 1.
func (s *Scorer) Relevance(hit domain.Hit, query domain.Query) float64 {
	total := trackFieldWeight*jaccard(query.Track, hit.Title) +
		artistFieldWeight*jaccard(query.Artist, hit.Artist) +
		albumFieldWeight*jaccard(query.Album, hit.Album)
	return math.Min(total, 1)
}

func (s *Scorer) Trust(source domain.Source) float64 {
	if value, ok := s.trust[source]; ok {
		return value
	}
	return s.defaultTrust
}

// FormatQuality rates a loose format label. Lossless beats any "320" marker,
// which beats plain MP3. Unknown and absent labels score 0.4.
func FormatQuality(format string) float64 {
	upper := strings.ToUpper(strings.TrimSpace(format))
	switch {
	case upper == "":
		return 0.4
	case strings.Contains(upper, "FLAC"), strings.Contains(upper, "WAV"):
		return 1.0
	case strings.Contains(upper, "320"):
		return 0.8
	case strings.Contains(upper, "MP3"):
		return 0.6
	default:
		return 0.4
	}
}

func Completeness(kind domain.Kind) float64 {
	if kind == domain.KindAlbum {
		return 0.9
	}
	return 0.6
}

func BitrateScore(kbps int) float64 {
	if kbps <= 0 {
		return absentBitrateScore
	}
	return math.Min(float64(kbps)/referenceBitrateKbps, 1)
}

// formatFamily maps a loose format label onto a known format when one is
// recognizable.
func formatFamily(format string) (domain.Format, bool) {
	upper := strings.ToUpper(strings.TrimSpace(format))
	switch {
	case upper == "":
		return "", false
	case strings.Contains(upper, "FLAC"):
		return domain.FormatFLAC, true
	case strings.Contains(upper, "WAV"):
		return domain.FormatWAV, true
	case strings.Contains(upper, "AAC"), strings.Contains(upper, "M4A"):
		return domain.FormatAAC, true
	case strings.Contains(upper, "MP3"):
		return domain.FormatMP3, true
	default:
		return "", false
	}
}

func clamp01(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func nonNegative(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	return value
}
