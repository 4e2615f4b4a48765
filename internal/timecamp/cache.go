package timecamp

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// AppCache is a JSON file cache of application metadata keyed by
// application id. Entries already cached are never refetched. Two runs
// writing the file at the same time can lose one run's additions; the
// cache is an optimization, not a source of truth.
type AppCache struct {
	path string
	log  *zap.Logger
	apps map[string]Application
}

// LoadAppCache reads the cache file. A missing file yields an empty
// cache; an unreadable one is discarded with a warning and rebuilt.
func LoadAppCache(path string, log *zap.Logger) (*AppCache, error) {
	c := &AppCache{
		path: path,
		log:  log.Named("appcache"),
		apps: make(map[string]Application),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading application cache %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.apps); err != nil {
		c.log.Warn("discarding unreadable application cache",
			zap.String("path", path), zap.Error(err))
		c.apps = make(map[string]Application)
	}
	return c, nil
}

// Get returns the cached application for id.
func (c *AppCache) Get(id string) (Application, bool) {
	app, ok := c.apps[id]
	return app, ok
}

// Put stores an application under id.
func (c *AppCache) Put(id string, app Application) {
	c.apps[id] = app
}

// Len returns the number of cached applications.
func (c *AppCache) Len() int { return len(c.apps) }

// Save writes the cache back to its file.
func (c *AppCache) Save() error {
	data, err := json.MarshalIndent(c.apps, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding application cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing application cache %s: %w", c.path, err)
	}
	return nil
}
