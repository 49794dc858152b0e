package domain

import "strings"

const (
	DefaultSearchLimit = 25
	MaxSearchLimit     = 200
)

type Format string

const (
	FormatFLAC Format = "FLAC"
	FormatMP3  Format = "MP3"
	FormatAAC  Format = "AAC"
	FormatWAV  Format = "WAV"
)

// ParseFormat maps a loose format label onto one of the known formats.
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToUpper(strings.TrimSpace(raw))) {
	case FormatFLAC:
		return FormatFLAC, true
	case FormatMP3:
		return FormatMP3, true
	case FormatAAC:
		return FormatAAC, true
	case FormatWAV:
		return FormatWAV, true
	default:
		return "", false
	}
}

// Query is a music search request. It is treated as immutable once issued.
type Query struct {
	Artist           string   `json:"artist,omitempty"`
	Album            string   `json:"album,omitempty"`
	Track            string   `json:"track,omitempty"`
	Year             int      `json:"year,omitempty"`
	Strict           bool     `json:"strict,omitempty"`
	PreferredFormats []Format `json:"preferredFormats,omitempty"`
	MinBitrateKbps   int      `json:"minBitrateKbps,omitempty"`
	Limit            int      `json:"limit,omitempty"`
}

// Terms returns the non-empty free-text parts of the query in artist, album, track order.
func (q Query) Terms() []string {
	terms := make([]string, 0, 3)
	for _, value := range []string{q.Artist, q.Album, q.Track} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	return terms
}

// Normalized trims text fields, deduplicates preferred formats and clamps the limit.
func (q Query) Normalized() Query {
	out := Query{
		Artist:         strings.TrimSpace(q.Artist),
		Album:          strings.TrimSpace(q.Album),
		Track:          strings.TrimSpace(q.Track),
		Year:           q.Year,
		Strict:         q.Strict,
		MinBitrateKbps: q.MinBitrateKbps,
		Limit:          q.Limit,
	}
	if out.Year < 0 {
		out.Year = 0
	}
	if out.MinBitrateKbps < 0 {
		out.MinBitrateKbps = 0
	}
	if out.Limit <= 0 {
		out.Limit = DefaultSearchLimit
	}
	if out.Limit > MaxSearchLimit {
		out.Limit = MaxSearchLimit
	}
	seen := make(map[Format]struct{}, len(q.PreferredFormats))
	for _, raw := range q.PreferredFormats {
		format, ok := ParseFormat(string(raw))
		if !ok {
			continue
		}
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		out.PreferredFormats = append(out.PreferredFormats, format)
	}
	return out
}
