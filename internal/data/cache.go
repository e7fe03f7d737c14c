package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache is a disk cache for downloaded datasets, laid out as
//
//	cacheDir/<provider>/<ticker>/<kind>.csv.gz
//	cacheDir/metadata.json
//
// Entries never expire on their own; Invalidate or Clear drops them.
type Cache struct {
	dir  string
	log  *logrus.Logger
	meta cacheMetadata
}

type cacheMetadata struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

type cacheEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	CachedAt time.Time `json:"cached_at"`
}

// CacheStats summarizes cache contents.
type CacheStats struct {
	Entries   int     `json:"entries"`
	Files     int     `json:"files"`
	TotalSize int64   `json:"total_size_bytes"`
	SizeMB    float64 `json:"total_size_mb"`
}

// NewCache opens (or creates) a cache rooted at dir.
func NewCache(dir string, log *logrus.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	c := &Cache{
		dir: dir,
		log: log,
		meta: cacheMetadata{
			Version: 1,
			Entries: make(map[string]cacheEntry),
		},
	}
	if err := c.loadMetadata(); err != nil {
		// A corrupt manifest only costs re-downloads.
		log.WithError(err).Warn("cache metadata unreadable, starting fresh")
	}
	return c, nil
}

// Has reports whether the entry exists on disk.
func (c *Cache) Has(provider, ticker, kind string) bool {
	_, err := os.Stat(c.path(provider, ticker, kind))
	return err == nil
}

// Get returns the cached bytes, or ErrNoData when missing.
func (c *Cache) Get(provider, ticker, kind string) ([]byte, error) {
	path := c.path(provider, ticker, kind)
	b, err := os.ReadFile(path) // #nosec G304 -- path is built from sanitized cache keys
	if err != nil {
		if os.IsNotExist(err) {
			c.log.WithField("key", c.key(provider, ticker, kind)).Debug("cache miss")
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}
	c.log.WithField("key", c.key(provider, ticker, kind)).Debug("cache hit")
	return b, nil
}

// Put stores bytes for the key and updates the manifest.
func (c *Cache) Put(provider, ticker, kind string, b []byte) error {
	path := c.path(provider, ticker, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating cache subdir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	c.meta.Entries[c.key(provider, ticker, kind)] = cacheEntry{
		Path:     path,
		Size:     int64(len(b)),
		CachedAt: time.Now().UTC(),
	}
	if err := c.saveMetadata(); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"key":  c.key(provider, ticker, kind),
		"size": len(b),
	}).Info("cached dataset")
	return nil
}

// Invalidate removes one entry; returns true if it existed.
func (c *Cache) Invalidate(provider, ticker, kind string) (bool, error) {
	path := c.path(provider, ticker, kind)
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("removing cache file: %w", err)
	}
	delete(c.meta.Entries, c.key(provider, ticker, kind))
	return true, c.saveMetadata()
}

// Clear wipes every cached file but keeps the cache directory.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("listing cache dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() == "metadata.json" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}
	c.meta.Entries = make(map[string]cacheEntry)
	return c.saveMetadata()
}

// Stats walks the cache and reports entry and size totals.
func (c *Cache) Stats() (CacheStats, error) {
	stats := CacheStats{Entries: len(c.meta.Entries)}
	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".csv.gz") {
			stats.Files++
			stats.TotalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return CacheStats{}, fmt.Errorf("walking cache dir: %w", err)
	}
	stats.SizeMB = float64(stats.TotalSize) / (1024 * 1024)
	return stats, nil
}

func (c *Cache) key(provider, ticker, kind string) string {
	return fmt.Sprintf("%s/%s/%s", provider, strings.ToLower(ticker), kind)
}

func (c *Cache) path(provider, ticker, kind string) string {
	return filepath.Join(c.dir, provider, strings.ToLower(ticker), kind+".csv.gz")
}

func (c *Cache) loadMetadata() error {
	b, err := os.ReadFile(filepath.Join(c.dir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(b, &c.meta)
}

func (c *Cache) saveMetadata() error {
	b, err := json.MarshalIndent(c.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, "metadata.json"), b, 0o600); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}
	return nil
}
