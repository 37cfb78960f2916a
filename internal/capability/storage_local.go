package capability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps media under a directory on disk.
type LocalStorage struct {
	root    string
	baseURL string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage roots storage at dir. When baseURL is set, returned URLs
// are baseURL joined with the key; otherwise they are file:// URLs.
func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local storage: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local storage: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create %q: %w", abs, err)
	}
	return &LocalStorage{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the storage directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// Put writes data atomically at key.
func (s *LocalStorage) Put(ctx context.Context, data []byte, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	target := s.pathFor(cleaned)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("local storage: create parent: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return "", fmt.Errorf("local storage: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("local storage: write %s: %w", cleaned, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("local storage: close %s: %w", cleaned, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("local storage: commit %s: %w", cleaned, err)
	}
	return s.urlFor(cleaned, target), nil
}

// Delete removes key and reports whether it existed.
func (s *LocalStorage) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(s.pathFor(cleaned)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("local storage: delete %s: %w", cleaned, err)
	}
	return true, nil
}

// Exists reports whether key is a stored non-empty file.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(s.pathFor(cleaned))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("local storage: stat %s: %w", cleaned, err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

func (s *LocalStorage) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *LocalStorage) urlFor(key, target string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String()
}

// LocalPath resolves a file:// URL or plain path to a filesystem path. Other
// schemes report false.
func LocalPath(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw, true
	}
	if u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}
