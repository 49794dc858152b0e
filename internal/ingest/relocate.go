package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

type RelocationMode string

const (
	RelocatedByRename RelocationMode = "rename"
	RelocatedByCopy   RelocationMode = "copy"
)

// Relocator moves a finished download from the staging area into the library.
type Relocator struct {
	rename func(oldpath, newpath string) error
}

func NewRelocator() *Relocator {
	return &Relocator{rename: os.Rename}
}

// Move renames src to dst, replacing any existing dst. When the two paths sit
// on different volumes it copies into a temporary file next to dst, renames
// that over dst and removes src. On success src no longer exists.
func (r *Relocator) Move(src, dst string) (RelocationMode, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create library dir: %w", err)
	}

	err := r.rename(src, dst)
	if err == nil {
		return RelocatedByRename, nil
	}
	if !isCrossDevice(err) {
		return "", fmt.Errorf("rename into library: %w", err)
	}

	if err := copyReplace(src, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove staging file: %w", err)
	}
	return RelocatedByCopy, nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}

func copyReplace(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open staging file: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".ingest-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, in); err != nil {
		cleanup()
		return fmt.Errorf("copy into library: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync library file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close library file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod library file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace library file: %w", err)
	}
	return nil
}
