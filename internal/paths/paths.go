package paths

import (
	"os"
	"path/filepath"
)

// Registry resolves well-known locations from the process environment so
// that no component hardcodes a path. Environment overrides: BOT_DATA_PATH,
// BOT_CACHE_PATH, BOT_IMAGE_CACHE_PATH, BOT_LOG_PATH, BOT_CONFIG_PATH.
type Registry struct {
	Root   string
	Data   string
	Cache  string
	Images string
	Logs   string
	Config string
}

// New builds a Registry rooted at dir (the working directory when empty)
// and ensures every directory exists.
func New(dir string) (*Registry, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}

	r := &Registry{Root: dir}
	r.Data = envOr("BOT_DATA_PATH", filepath.Join(dir, "data"))
	r.Cache = envOr("BOT_CACHE_PATH", filepath.Join(r.Data, "cache"))
	r.Images = envOr("BOT_IMAGE_CACHE_PATH", filepath.Join(r.Cache, "images"))
	r.Logs = envOr("BOT_LOG_PATH", filepath.Join(dir, "logs"))
	r.Config = envOr("BOT_CONFIG_PATH", filepath.Join(dir, "config"))

	for _, d := range []string{r.Data, r.Cache, r.Images, r.Logs, r.Config} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DataFile resolves a file inside the data directory.
func (r *Registry) DataFile(name string) string { return filepath.Join(r.Data, name) }

// CacheFile resolves a file inside the cache directory.
func (r *Registry) CacheFile(name string) string { return filepath.Join(r.Cache, name) }

// LogFile resolves a file inside the logs directory.
func (r *Registry) LogFile(name string) string { return filepath.Join(r.Logs, name) }

// ConfigFile resolves a file inside the config directory.
func (r *Registry) ConfigFile(name string) string { return filepath.Join(r.Config, name) }

// SnapshotFile resolves the on-disk catalog for a venue.
func (r *Registry) SnapshotFile(venue string) string {
	return r.DataFile(venue + "_data.json")
}

// NameIDFile resolves the Steam nameid table.
func (r *Registry) NameIDFile() string { return r.DataFile("item_nameids.json") }

// ArchiveFile resolves the opportunity archive.
func (r *Registry) ArchiveFile() string { return r.DataFile("profitability_data.json") }
