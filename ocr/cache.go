package ocr

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ResultCache stores OCR text on disk keyed by the hash of the optimized page
// image. Entries are written once and never replaced. Any I/O failure disables
// the cache for the rest of the process instead of failing the conversion.
type ResultCache struct {
	dir      string
	disabled atomic.Bool
}

// NewResultCache creates dir if needed. When it cannot be created the returned
// cache is already disabled.
func NewResultCache(dir string) *ResultCache {
	c := &ResultCache{dir: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.disable(err, "create cache directory")
	}
	return c
}

// Enabled reports whether the cache is still in use.
func (c *ResultCache) Enabled() bool {
	return c != nil && !c.disabled.Load()
}

func (c *ResultCache) path(key string) string {
	return filepath.Join(c.dir, key+".txt")
}

// Get returns the cached text for key.
func (c *ResultCache) Get(key string) (string, bool) {
	if !c.Enabled() || key == "" {
		return "", false
	}
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.disable(err, "read cache entry")
		}
		return "", false
	}
	return string(data), true
}

// Put stores text under key unless an entry already exists.
func (c *ResultCache) Put(key, text string) {
	if !c.Enabled() || key == "" {
		return
	}
	target := c.path(key)
	if _, err := os.Stat(target); err == nil {
		return
	}

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		c.disable(err, "create cache entry")
		return
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(text)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		c.disable(errors.Join(werr, cerr), "write cache entry")
		return
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		c.disable(err, "commit cache entry")
		return
	}
	log.WithField("key", key).Debug("Cached OCR result")
}

func (c *ResultCache) disable(err error, op string) {
	if c.disabled.CompareAndSwap(false, true) {
		log.WithFields(logrus.Fields{
			"dir": c.dir,
			"op":  op,
		}).WithError(err).Warn("Disabling OCR result cache")
	}
}
