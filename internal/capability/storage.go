package capability

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/h2non/filetype"

	"scriptreel/internal/config"
	"scriptreel/internal/services"
)

const defaultContentType = "application/octet-stream"

// NewStorage builds the storage backend selected in cfg.
func NewStorage(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Backend {
	case "", config.StorageLocal:
		return NewLocalStorage(cfg.Storage.LocalDir, cfg.Storage.BaseURL)
	case config.StorageGCS:
		return NewGCSStorage(ctx, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "unsupported backend "+cfg.Storage.Backend, nil)
	}
}

// Sniff returns the MIME type and extension detected from data's magic
// bytes. Unknown content reports application/octet-stream and no extension.
func Sniff(data []byte) (string, string) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return defaultContentType, ""
	}
	return kind.MIME.Value, kind.Extension
}

// WithExtension appends the sniffed extension of data to name when name has
// none.
func WithExtension(name string, data []byte) string {
	if path.Ext(name) != "" {
		return name
	}
	if _, ext := Sniff(data); ext != "" {
		return name + "." + ext
	}
	return name
}

// cleanKey normalizes a storage path and rejects keys escaping the root.
func cleanKey(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", fmt.Errorf("storage: invalid path %q", p)
		}
	}
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if key == "" {
		return "", fmt.Errorf("storage: empty path")
	}
	return key, nil
}
