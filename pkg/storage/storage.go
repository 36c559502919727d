// Package storage keeps uploaded files on the local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files whose extension is not allowed.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrTooLarge is returned when a file exceeds the configured limit.
var ErrTooLarge = errors.New("file too large")

// Local stores files under a root directory and returns paths relative to it.
type Local struct {
	root     string
	maxBytes int64
}

func NewLocal(root string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Local{root: root, maxBytes: maxBytes}, nil
}

// Root is the directory files are stored in.
func (l *Local) Root() string {
	return l.root
}

// Save copies src into folder under a random name keeping the extension of
// filename, which must be one of allowed.
func (l *Local) Save(folder, filename string, src io.Reader, allowed []string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(allowed, ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	folder = filepath.Clean("/" + folder)[1:]

	dir := filepath.Join(l.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", folder, err)
	}
	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	limit := l.maxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if n > limit {
		os.Remove(dst.Name())
		return "", ErrTooLarge
	}
	return filepath.ToSlash(filepath.Join(folder, name)), nil
}

// Delete removes a stored file; a missing file is not an error.
func (l *Local) Delete(path string) error {
	if path == "" {
		return nil
	}
	clean := filepath.Clean("/" + path)[1:]
	if err := os.Remove(filepath.Join(l.root, clean)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path was stored.
func (l *Local) Exists(path string) bool {
	clean := filepath.Clean("/" + path)[1:]
	_, err := os.Stat(filepath.Join(l.root, clean))
	return err == nil
}

// Locate returns the file system path of a stored file, or os.ErrNotExist.
func (l *Local) Locate(path string) (string, error) {
	clean := filepath.Clean("/" + path)[1:]
	full := filepath.Join(l.root, clean)
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", os.ErrNotExist
	}
	return full, nil
}

// Sub is the directory of one folder under the root, for serving it as is.
func (l *Local) Sub(folder string) string {
	return filepath.Join(l.root, filepath.Clean("/" + folder)[1:])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
