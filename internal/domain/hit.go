package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidHit = errors.New("invalid hit")

type Source string

const (
	SourceArchive Source = "archive"
	SourceLocal   Source = "local"
	SourceCustom  Source = "custom"
	SourceYouTube Source = "youtube"
)

type Kind string

const (
	KindTrack Kind = "track"
	KindAlbum Kind = "album"
)

// MediaURL is one location attached to a hit. Any of the fields may be empty.
type MediaURL struct {
	Stream   string `json:"stream,omitempty"`
	Download string `json:"download,omitempty"`
	Page     string `json:"page,omitempty"`
}

// Hit is a single raw search result produced by one adapter. Zero numeric
// fields mean "unknown". Extra carries source specific identifiers needed for
// resolution and is owned by the hit.
type Hit struct {
	Source      Source         `json:"source"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	Artist      string         `json:"artist,omitempty"`
	Album       string         `json:"album,omitempty"`
	Year        int            `json:"year,omitempty"`
	URLs        []MediaURL     `json:"urls"`
	Format      string         `json:"format,omitempty"`
	BitrateKbps int            `json:"bitrateKbps,omitempty"`
	DurationSec float64        `json:"durationSec,omitempty"`
	SizeBytes   int64          `json:"sizeBytes,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ExtraString returns a string value from the extra bag, or "" when the key is
// missing or holds a non-string.
func (h Hit) ExtraString(key string) string {
	if h.Extra == nil {
		return ""
	}
	switch value := h.Extra[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

// PageURL returns the first page URL attached to the hit.
func (h Hit) PageURL() string {
	for _, u := range h.URLs {
		if page := strings.TrimSpace(u.Page); page != "" {
			return page
		}
	}
	return ""
}

// Validate checks that the hit is structurally usable for resolution and ingest.
func (h Hit) Validate() error {
	if strings.TrimSpace(string(h.Source)) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidHit)
	}
	if strings.TrimSpace(h.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidHit)
	}
	switch h.Kind {
	case "", KindTrack, KindAlbum:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidHit, h.Kind)
	}
	if h.BitrateKbps < 0 || h.DurationSec < 0 || h.SizeBytes < 0 || h.Year < 0 {
		return fmt.Errorf("%w: negative numeric field", ErrInvalidHit)
	}
	return nil
}

// Clone returns a deep enough copy for the hit to be handed to another owner.
func (h Hit) Clone() Hit {
	out := h
	if h.URLs != nil {
		out.URLs = append([]MediaURL(nil), h.URLs...)
	}
	if h.Extra != nil {
		out.Extra = make(map[string]any, len(h.Extra))
		for key, value := range h.Extra {
			out.Extra[key] = value
		}
	}
	return out
}

// ScoredHit pairs a hit with its score for one query.
type ScoredHit struct {
	Hit   Hit     `json:"hit"`
	Score float64 `json:"score"`
}

// ResolvedMedia is a directly fetchable media location. DirectURL may expire;
// callers re-resolve instead of storing it.
type ResolvedMedia struct {
	DirectURL string `json:"directUrl"`
	Filename  string `json:"filename,omitempty"`
}
