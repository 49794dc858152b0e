package search

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"tunehub/internal/domain"
)

const (
	defaultBucketSeconds = 2
	keyDelimiter         = "|"
)

var (
	bracketedPattern   = regexp.MustCompile(`[\[\(].*?[\]\)]`)
	whitespaceRunes    = regexp.MustCompile(`\s+`)
	apostropheReplacer = strings.NewReplacer("’", "'", "‘", "'", "`", "'")
)

// Canonicalizer computes clustering keys. The zero value buckets durations to
// the nearest even second.
type Canonicalizer struct {
	BucketSeconds int
}

// NewCanonicalizer returns a canonicalizer with the given duration bucket width
// in seconds. Non-positive widths fall back to 2.
func NewCanonicalizer(bucketSeconds int) Canonicalizer {
	return Canonicalizer{BucketSeconds: bucketSeconds}
}

func (c Canonicalizer) bucketWidth() int {
	if c.BucketSeconds <= 0 {
		return defaultBucketSeconds
	}
	return c.BucketSeconds
}

// Key returns the canonical key of a hit: normalized artist, album and title
// plus the duration bucket, joined by "|" with empty parts omitted.
func (c Canonicalizer) Key(hit domain.Hit) string {
	parts := make([]string, 0, 4)
	for _, value := range []string{hit.Artist, hit.Album, hit.Title} {
		if normalized := normalizeText(value); normalized != "" {
			parts = append(parts, normalized)
		}
	}
	if bucket := c.DurationBucket(hit.DurationSec); bucket > 0 {
		parts = append(parts, strconv.Itoa(bucket))
	}
	return strings.Join(parts, keyDelimiter)
}

// DurationBucket rounds the duration to whole seconds and then to the nearest
// multiple of the bucket width. Unknown durations map to 0.
func (c Canonicalizer) DurationBucket(durationSec float64) int {
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return 0
	}
	width := float64(c.bucketWidth())
	return int(math.Round(math.Round(durationSec)/width) * width)
}

// Cluster is the set of hits sharing one canonical key.
type Cluster struct {
	Key  string
	Hits []domain.Hit
}

// Cluster groups hits by canonical key. Clusters are returned in the order
// their first member was seen and members keep their input order.
func (c Canonicalizer) Cluster(hits []domain.Hit) []Cluster {
	index := make(map[string]int, len(hits))
	clusters := make([]Cluster, 0, len(hits))
	for _, hit := range hits {
		key := c.Key(hit)
		if pos, ok := index[key]; ok {
			clusters[pos].Hits = append(clusters[pos].Hits, hit)
			continue
		}
		index[key] = len(clusters)
		clusters = append(clusters, Cluster{Key: key, Hits: []domain.Hit{hit}})
	}
	return clusters
}

// Group flattens clusters into a key to members mapping.
func Group(clusters []Cluster) map[string][]domain.Hit {
	out := make(map[string][]domain.Hit, len(clusters))
	for _, cluster := range clusters {
		out[cluster.Key] = cluster.Hits
	}
	return out
}

// normalizeText folds diacritics, lower-cases, strips bracketed qualifiers and
// every punctuation mark except hyphen, apostrophe and ampersand.
func normalizeText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = foldDiacritics(value)
	value = apostropheReplacer.Replace(strings.ToLower(value))
	value = whitespaceRunes.ReplaceAllString(value, " ")
	value = bracketedPattern.ReplaceAllString(value, "")

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '-' || r == '&' || r == '\'':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespaceRunes.ReplaceAllString(b.String(), " "))
}

// Transformers carry state, so one chain is built per call.
func foldDiacritics(value string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, value)
	if err != nil {
		return value
	}
	return folded
}

func tokenSet(value string) map[string]struct{} {
	normalized := normalizeText(value)
	if normalized == "" {
		return nil
	}
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

// jaccard is |A∩B| / |A∪B| over normalized token sets; empty sides yield 0.
func jaccard(left, right string) float64 {
	a := tokenSet(left)
	b := tokenSet(right)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for token := range a {
		if _, ok := b[token]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
