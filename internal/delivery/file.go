// Package delivery hands finished audio payloads to the user as files in the
// download directory.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
)

const (
	DefaultDirPermissions  = 0o755
	DefaultFilePermissions = 0o644

	partSuffix   = ".part"
	fallbackName = "audio"
	maxNameTries = 1000
)

type FileSink struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileSink creates dir when it is missing.
func NewFileSink(dir string, logger zerolog.Logger) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("download directory is empty")
	}
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	return &FileSink{
		dir:    dir,
		logger: logger.With().Str("component", "delivery").Logger(),
	}, nil
}

func (s *FileSink) Dir() string {
	return s.dir
}

// Deliver writes r to the download directory under name and returns the final
// path. The payload lands in a .part file first and is renamed into place only
// once complete. An existing file is never overwritten: the new one becomes
// "name (1).ext", "name (2).ext" and so on.
func (s *FileSink) Deliver(ctx context.Context, name string, r io.Reader) (string, error) {
	name = SanitizeFileName(name)

	tmp, err := os.CreateTemp(s.dir, "."+name+".*"+partSuffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dest, err := s.freePath(name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}

	s.logger.Debug().Str("path", dest).Int64("bytes", written).Msg("file delivered")
	return dest, nil
}

// freePath must be called with mu held.
func (s *FileSink) freePath(name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(s.dir, name)
	for i := 1; i <= maxNameTries; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(s.dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
	}
	return "", fmt.Errorf("no free file name for %s", name)
}

// SanitizeFileName strips path separators, characters reserved on common
// filesystems and control characters. Spaces are kept.
func SanitizeFileName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	ext := filepath.Ext(clean)
	base := strings.Trim(strings.TrimSuffix(clean, ext), " .")
	if base == "" {
		base = fallbackName
	}
	return base + ext
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
