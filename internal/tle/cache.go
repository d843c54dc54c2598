package tle

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	defaultCacheFiles = 5
	cacheNameFormat   = "tle_%d.txt"
)

// ErrCacheEmpty is returned by LoadLatest when the cache holds no snapshots.
var ErrCacheEmpty = errors.New("tle cache is empty")

// Cache keeps element blobs on disk as snapshots named by their Unix time,
// newest wins. Acquiring the blobs is somebody else's job.
type Cache struct {
	dir  string
	keep int
}

// NewCache stores snapshots in dir and keeps the newest keep of them.
func NewCache(dir string, keep int) *Cache {
	if keep <= 0 {
		keep = defaultCacheFiles
	}
	return &Cache{dir: dir, keep: keep}
}

type snapshot struct {
	name string
	at   time.Time
}

// Write stores data as the snapshot taken at ts, then prunes.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	name := fmt.Sprintf(cacheNameFormat, ts.Unix())
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing cache snapshot: %w", err)
	}

	snaps, err := c.snapshots()
	if err != nil {
		return err
	}
	for len(snaps) > c.keep {
		if err := os.Remove(filepath.Join(c.dir, snaps[0].name)); err != nil {
			return fmt.Errorf("pruning %s: %w", snaps[0].name, err)
		}
		snaps = snaps[1:]
	}
	return nil
}

// LoadLatest returns the newest snapshot and the time it was taken.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.snapshots()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrCacheEmpty, c.dir)
	}
	newest := snaps[len(snaps)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, newest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache snapshot: %w", err)
	}
	return data, newest.at, nil
}

// snapshots lists the cache oldest first. Foreign files are ignored and a
// missing directory is an empty cache.
func (c *Cache) snapshots() ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range entries {
		var unix int64
		if e.IsDir() {
			continue
		}
		// Sscanf stops at the verb, so confirm the name round-trips.
		if _, err := fmt.Sscanf(e.Name(), cacheNameFormat, &unix); err != nil || fmt.Sprintf(cacheNameFormat, unix) != e.Name() {
			continue
		}
		snaps = append(snaps, snapshot{name: e.Name(), at: time.Unix(unix, 0)})
	}
	slices.SortFunc(snaps, func(a, b snapshot) int { return cmp.Compare(a.at.Unix(), b.at.Unix()) })
	return snaps, nil
}

// LoadCatalog resolves the catalog blob: an explicit file path wins, then the
// newest cache snapshot, then the fallback record. A file that is missing or
// yields no records defers to the cache. A file that parses is also
// written to the cache so later starts without it see the same data.
func LoadCatalog(path string, cache *Cache, logger *slog.Logger) *Catalog {
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err != nil:
			logger.Warn("failed to read TLE file", "path", path, "error", err)
		default:
			c := Load("file:"+path, data, logger)
			if c.Source == SourceFallback {
				logger.Warn("TLE file has no usable records, trying cache", "path", path)
				break
			}
			if cache != nil {
				if err := cache.Write(data, c.LoadedAt); err != nil {
					logger.Warn("failed to snapshot TLE file into cache", "path", path, "error", err)
				}
			}
			return c
		}
	}

	if cache != nil {
		data, ts, err := cache.LoadLatest()
		if err == nil {
			c := Load("cache", data, logger)
			if c.Source != SourceFallback {
				c.LoadedAt = ts.UTC()
			}
			return c
		}
		logger.Info("no TLE cache found", "error", err)
	}

	return Load("none", nil, logger)
}
