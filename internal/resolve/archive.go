package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"tunehub/internal/domain"
	"tunehub/internal/search"
)

const (
	defaultMetadataEndpoint = "https://archive.org/metadata/"
	defaultDownloadEndpoint = "https://archive.org/download/"
)

// Manifest files are picked by name in this order; the first listed file is
// the last resort.
var archivePreference = []*regexp.Regexp{
	regexp.MustCompile(`(?i)flac$`),
	regexp.MustCompile(`(?i)wav$`),
	regexp.MustCompile(`(?i)320\.mp3$`),
	regexp.MustCompile(`(?i)\.mp3$`),
}

type ArchiveConfig struct {
	MetadataEndpoint string
	DownloadEndpoint string
	UserAgent        string
	Client           *http.Client
}

type ArchiveStrategy struct {
	client           *http.Client
	metadataEndpoint string
	downloadEndpoint string
	userAgent        string
}

type archiveFile struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}

func NewArchiveStrategy(cfg ArchiveConfig) *ArchiveStrategy {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ArchiveStrategy{
		client:           client,
		metadataEndpoint: withSlash(cfg.MetadataEndpoint, defaultMetadataEndpoint),
		downloadEndpoint: withSlash(cfg.DownloadEndpoint, defaultDownloadEndpoint),
		userAgent:        strings.TrimSpace(cfg.UserAgent),
	}
}

func (s *ArchiveStrategy) Source() domain.Source { return domain.SourceArchive }

func (s *ArchiveStrategy) Resolve(ctx context.Context, hit domain.Hit) (*domain.ResolvedMedia, error) {
	identifier := hit.ExtraString("identifier")
	if identifier == "" {
		return nil, nil
	}

	files, found, err := s.manifest(ctx, identifier)
	if err != nil || !found {
		return nil, err
	}
	file, ok := pickArchiveFile(files)
	if !ok {
		return nil, nil
	}
	return &domain.ResolvedMedia{
		DirectURL: s.downloadEndpoint + url.PathEscape(identifier) + "/" + url.PathEscape(file.Name),
		Filename:  file.Name,
	}, nil
}

// manifest fetches the item's file list. Missing items and client errors are
// reported as not found; 429 and 5xx are errors so callers may retry.
func (s *ArchiveStrategy) manifest(ctx context.Context, identifier string) ([]archiveFile, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metadataEndpoint+url.PathEscape(identifier), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch archive manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		statusErr := &search.StatusError{Source: "archive metadata", Code: resp.StatusCode}
		if statusErr.Temporary() {
			return nil, false, statusErr
		}
		return nil, false, nil
	}

	var payload struct {
		Files []archiveFile `json:"files"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16*1024*1024)).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decode archive manifest: %w", err)
	}
	return payload.Files, true, nil
}

func pickArchiveFile(files []archiveFile) (archiveFile, bool) {
	named := make([]archiveFile, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file.Name) != "" {
			named = append(named, file)
		}
	}
	if len(named) == 0 {
		return archiveFile{}, false
	}
	for _, pattern := range archivePreference {
		for _, file := range named {
			if pattern.MatchString(file.Name) {
				return file, true
			}
		}
	}
	return named[0], true
}

func withSlash(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if !strings.HasSuffix(value, "/") {
		value += "/"
	}
	return value
}
