package ytdlp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeExecutor struct {
	outputs map[string]string
	errs    map[string]error
	calls   [][]string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{binary}, args...))
	key := args[0]
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return []byte(f.outputs[key]), nil
}

func TestInfoDecodesFormats(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"-J": `{"id":"abc","title":"So What","uploader":"Jazz Channel","duration":562,
		"formats":[
			{"format_id":"18","url":"https://v/18","ext":"mp4","acodec":"mp4a","vcodec":"avc1","abr":96},
			{"format_id":"140","url":"https://v/140","ext":"m4a","acodec":"mp4a.40.2","vcodec":"none","abr":129.5},
			{"format_id":"251","url":"https://v/251","ext":"webm","acodec":"opus","abr":160}
		]}`,
	}}
	client := New("", WithExecutor(exec))

	info, err := client.Info(context.Background(), "https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Title != "So What" || len(info.Formats) != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
	best, ok := BestAudio(info.Formats)
	if !ok || best.FormatID != "251" {
		t.Fatalf("expected opus stream, got %+v", best)
	}
	if got := strings.Join(exec.calls[0], " "); got != "yt-dlp -J --no-warnings --no-playlist https://www.youtube.com/watch?v=abc" {
		t.Fatalf("unexpected command: %s", got)
	}
}

func TestBestAudioSkipsVideoAndEmptyURLs(t *testing.T) {
	formats := []Format{
		{FormatID: "a", ACodec: "none", VCodec: "none", URL: "u"},
		{FormatID: "b", ACodec: "mp4a", VCodec: "avc1", URL: "u", ABR: 320},
		{FormatID: "c", ACodec: "opus", URL: "", ABR: 250},
	}
	if _, ok := BestAudio(formats); ok {
		t.Fatal("no audio-only stream should qualify")
	}
	formats = append(formats, Format{FormatID: "d", ACodec: "opus", VCodec: "none", URL: "u", ABR: 50}, Format{FormatID: "e", ACodec: "aac", URL: "u", ABR: 50})
	if best, ok := BestAudio(formats); !ok || best.FormatID != "d" {
		t.Fatalf("ties keep listed order, got %+v", best)
	}
}

func TestBestAudioURLFirstLine(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{"-f": "\nhttps://cdn/audio\nhttps://cdn/video\n"}}
	url, err := New("yt", WithExecutor(exec)).BestAudioURL(context.Background(), "abc")
	if err != nil || url != "https://cdn/audio" {
		t.Fatalf("unexpected url %q err %v", url, err)
	}

	empty := &fakeExecutor{outputs: map[string]string{"-f": "  \n"}}
	if _, err := New("yt", WithExecutor(empty)).BestAudioURL(context.Background(), "abc"); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream, got %v", err)
	}
}

func TestSearchBuildsQuery(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"-J": `{"entries":[{"id":"x1","title":"Naima","url":"https://www.youtube.com/watch?v=x1","channel":"Coltrane"},{"id":"x2","title":"Giant Steps"}]}`,
	}}
	entries, err := New("yt-dlp", WithExecutor(exec)).Search(context.Background(), "John Coltrane Naima", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "x1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	last := exec.calls[0][len(exec.calls[0])-1]
	if last != "ytsearch10:John Coltrane Naima" {
		t.Fatalf("unexpected search target %q", last)
	}
}

func TestRunWrapsErrors(t *testing.T) {
	boom := errors.New("exit status 1: ERROR: Video unavailable")
	exec := &fakeExecutor{errs: map[string]error{"-J": boom}}
	_, err := New("yt-dlp", WithExecutor(exec)).Info(context.Background(), "gone")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
