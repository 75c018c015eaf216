package native

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/fyrsmithlabs/stylefix/internal/engine"
)

// cacheVersion changes whenever rule output changes for the same input.
const cacheVersion = 1

// fileCache remembers the content hash of every file that needed no work,
// so the next run on the same ref can skip it. Entries only count when the
// signature of the run that wrote them matches.
type fileCache struct {
	Version   int               `json:"version"`
	Signature string            `json:"signature"`
	Hashes    map[string]uint64 `json:"hashes"`
}

func newFileCache(signature string) *fileCache {
	return &fileCache{Version: cacheVersion, Signature: signature, Hashes: make(map[string]uint64)}
}

// signature identifies the rules and options that produced a cache.
func signature(cfg engine.StyleConfig) string {
	parts := append([]string{strconv.Itoa(cacheVersion)}, cfg.Rules()...)
	parts = append(parts, "linting="+strconv.FormatBool(cfg.Linting()), "header="+cfg.Header())
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "\x00")), 16)
}

func hashContent(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// loadFileCache reads the artifact at path. A missing artifact or one from a
// different configuration yields an empty cache.
func loadFileCache(path, signature string) (*fileCache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newFileCache(signature), nil
	}
	if err != nil {
		return newFileCache(signature), fmt.Errorf("read cache: %w", err)
	}

	var c fileCache
	if err := json.Unmarshal(data, &c); err != nil {
		return newFileCache(signature), fmt.Errorf("decode cache: %w", err)
	}
	if c.Version != cacheVersion || c.Signature != signature || c.Hashes == nil {
		return newFileCache(signature), nil
	}
	return &c, nil
}

func (c *fileCache) fresh(rel string, hash uint64) bool {
	h, ok := c.Hashes[rel]
	return ok && h == hash
}

// save writes the cache atomically.
func (c *fileCache) save(path string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
