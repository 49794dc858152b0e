package resolve

import (
	"context"
	"errors"
	"strings"

	"tunehub/internal/domain"
	"tunehub/internal/providers/youtube"
	"tunehub/internal/ytdlp"
)

const defaultVideoExt = "m4a"

// Extractor is the part of the yt-dlp client the video strategy needs.
type Extractor interface {
	Info(ctx context.Context, target string) (ytdlp.Info, error)
	BestAudioURL(ctx context.Context, target string) (string, error)
}

type VideoStrategy struct {
	extractor Extractor
}

func NewVideoStrategy(extractor Extractor) *VideoStrategy {
	return &VideoStrategy{extractor: extractor}
}

func (s *VideoStrategy) Source() domain.Source { return domain.SourceYouTube }

// Resolve lists the formats and takes the highest bitrate audio-only stream.
// Without one it asks the extractor for "bestaudio" directly.
func (s *VideoStrategy) Resolve(ctx context.Context, hit domain.Hit) (*domain.ResolvedMedia, error) {
	page := hit.PageURL()
	if page == "" {
		if videoID := hit.ExtraString("videoId"); videoID != "" {
			page = youtube.WatchURL(videoID)
		}
	}
	if page == "" {
		return nil, nil
	}

	info, infoErr := s.extractor.Info(ctx, page)
	if infoErr == nil {
		if format, ok := ytdlp.BestAudio(info.Formats); ok {
			return &domain.ResolvedMedia{DirectURL: format.URL, Filename: videoFilename(info, hit, format.Ext)}, nil
		}
	}

	directURL, err := s.extractor.BestAudioURL(ctx, page)
	switch {
	case errors.Is(err, ytdlp.ErrNoStream):
		return nil, nil
	case err != nil:
		return nil, errors.Join(infoErr, err)
	}
	return &domain.ResolvedMedia{DirectURL: directURL, Filename: videoFilename(info, hit, "")}, nil
}

// videoFilename is "<uploader|artist|YouTube> - <title>.<ext>".
func videoFilename(info ytdlp.Info, hit domain.Hit, ext string) string {
	author := firstNonEmpty(info.Uploader, info.Channel, hit.Artist, "YouTube")
	title := firstNonEmpty(info.Title, hit.Title)
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = defaultVideoExt
	}
	return author + " - " + title + "." + ext
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
