package cache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/xZoluGames/skinarb/internal/atomicio"
)

// ImageCache is the content-addressed on-disk store for item icons. The
// path for a URL is deterministic; file existence is the cache check.
type ImageCache struct {
	dir    string
	logger zerolog.Logger
}

// NewImageCache roots an image cache at dir.
func NewImageCache(dir string, logger zerolog.Logger) *ImageCache {
	return &ImageCache{dir: dir, logger: logger.With().Str("component", "image_cache").Logger()}
}

// Path derives the on-disk location for a source URL: an md5 of the URL,
// segmented by its first two hex chars to keep directories small.
func (ic *ImageCache) Path(url string) string {
	sum := md5.Sum([]byte(url))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(ic.dir, name[:2], name+".jpg")
}

// Has reports whether the image for url is already stored.
func (ic *ImageCache) Has(url string) bool {
	_, err := os.Stat(ic.Path(url))
	return err == nil
}

// Store writes image data for url and returns the cache path.
func (ic *ImageCache) Store(url string, data []byte) (string, error) {
	path := ic.Path(url)
	if err := atomicio.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// LocalURL rewrites a remote icon URL to its cached form when the image is
// on disk, otherwise returns the original URL untouched. The rewritten
// path keeps the segment directory so it maps straight back to Path().
func (ic *ImageCache) LocalURL(url string) string {
	if url == "" {
		return ""
	}
	if ic.Has(url) {
		sum := md5.Sum([]byte(url))
		name := hex.EncodeToString(sum[:])
		return "/cache/images/" + name[:2] + "/" + name + ".jpg"
	}
	return url
}

// ImportTree adopts a pre-existing image tree by symlinking it under the
// cache directory. Contents are never copied.
func (ic *ImageCache) ImportTree(external string) error {
	info, err := os.Stat(external)
	if err != nil || !info.IsDir() {
		return err
	}
	link := filepath.Join(ic.dir, "external")
	if _, err := os.Lstat(link); err == nil {
		return nil // already imported
	}
	if err := os.MkdirAll(ic.dir, 0o755); err != nil {
		return err
	}
	if err := os.Symlink(external, link); err != nil {
		return err
	}
	ic.logger.Info().Str("source", external).Msg("external image tree linked")
	return nil
}
