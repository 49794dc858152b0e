package ingest

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"tunehub/internal/domain"
)

const (
	defaultExt = "mp3"
	// maxNameBytes keeps a sanitized component plus the staging prefix and
	// extension under the common 255 byte file name limit.
	maxNameBytes = 200
	maxExtBytes  = 10
)

var unsafeNameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

var stagingSeq atomic.Uint64

// SafeName makes value usable as a single path component of at most
// maxNameBytes bytes. Names that end up empty or consist only of dots become
// fallback.
func SafeName(value, fallback string) string {
	name := truncateName(strings.TrimSpace(unsafeNameChars.Replace(value)), maxNameBytes)
	if strings.Trim(name, ".") == "" {
		return fallback
	}
	return name
}

// truncateName cuts name to at most limit bytes on a rune boundary.
func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return strings.TrimSpace(name[:cut])
}

// FinalPath lays the track out as <root>/<artist>/<album>/<title>.<ext>.
func FinalPath(root string, hit domain.Hit, ext string) string {
	return filepath.Join(root,
		SafeName(hit.Artist, "Unknown Artist"),
		SafeName(hit.Album, "Unknown Album"),
		SafeName(hit.Title, "Unknown Track")+"."+ext,
	)
}

// stagingName is unique within the process: a wall clock prefix keeps it
// unique across restarts and the sequence number within one nanosecond.
func stagingName(title, ext string) string {
	return strconv.FormatInt(time.Now().UnixNano(), 10) + "_" +
		strconv.FormatUint(stagingSeq.Add(1), 10) + "_" +
		SafeName(title, "Unknown Track") + "." + ext
}

// extFromFilename returns the lower-cased extension without the dot, or mp3.
func extFromFilename(filename string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), ".")
	ext = strings.ToLower(SafeName(ext, ""))
	if ext == "" || len(ext) > maxExtBytes || strings.ContainsAny(ext, " _") {
		return defaultExt
	}
	return ext
}
