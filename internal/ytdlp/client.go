// Package ytdlp wraps the yt-dlp command line extractor.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

const defaultSearchLimit = 10

var ErrNoStream = errors.New("no playable stream")

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

type Client struct {
	binary string
	exec   Executor
}

func New(binary string, opts ...Option) *Client {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	client := &Client{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Format is one entry of the "formats" list in yt-dlp's JSON dump.
type Format struct {
	FormatID string  `json:"format_id"`
	URL      string  `json:"url"`
	Ext      string  `json:"ext"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
	Filesize int64   `json:"filesize"`
}

// AudioOnly reports a stream with an audio codec and no video codec.
func (f Format) AudioOnly() bool {
	acodec := strings.ToLower(strings.TrimSpace(f.ACodec))
	vcodec := strings.ToLower(strings.TrimSpace(f.VCodec))
	return acodec != "" && acodec != "none" && (vcodec == "" || vcodec == "none")
}

type Info struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Uploader   string   `json:"uploader"`
	Channel    string   `json:"channel"`
	WebpageURL string   `json:"webpage_url"`
	Duration   float64  `json:"duration"`
	Formats    []Format `json:"formats"`
}

// Entry is a flat playlist entry as produced by a ytsearch query.
type Entry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

// BestAudio returns the audio-only format with the highest audio bitrate that
// carries a URL. Equal bitrates keep the listed order.
func BestAudio(formats []Format) (Format, bool) {
	candidates := make([]Format, 0, len(formats))
	for _, format := range formats {
		if format.AudioOnly() && strings.TrimSpace(format.URL) != "" {
			candidates = append(candidates, format)
		}
	}
	if len(candidates) == 0 {
		return Format{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ABR > candidates[j].ABR
	})
	return candidates[0], true
}

// Info dumps the metadata of a single video.
func (c *Client) Info(ctx context.Context, target string) (Info, error) {
	out, err := c.run(ctx, "-J", "--no-warnings", "--no-playlist", target)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return Info{}, fmt.Errorf("decode yt-dlp info: %w", err)
	}
	return info, nil
}

// BestAudioURL asks yt-dlp to pick the best audio stream itself and returns
// the first printed URL.
func (c *Client) BestAudioURL(ctx context.Context, target string) (string, error) {
	out, err := c.run(ctx, "-f", "bestaudio", "-g", "--no-warnings", "--no-playlist", target)
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", ErrNoStream
}

// Search runs a flat ytsearch query. Non-positive limits default to 10.
func (c *Client) Search(ctx context.Context, terms string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	out, err := c.run(ctx, "-J", "--flat-playlist", "--no-warnings", "ytsearch"+strconv.Itoa(limit)+":"+terms)
	if err != nil {
		return nil, err
	}
	var playlist struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(out, &playlist); err != nil {
		return nil, fmt.Errorf("decode yt-dlp search: %w", err)
	}
	return playlist.Entries, nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp %s: %w", args[0], err)
	}
	return out, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
