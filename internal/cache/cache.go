package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/ppiankov/medrights/internal/model"
)

// Cache stores rendered answers keyed by data version and query
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the cache key for an answer. The fingerprint of the data and
// scoring policy is part of the key so an answer built under other data or
// another policy is never served, even from a disk cache left by an earlier
// process.
func Key(fingerprint string, showProof bool, query string) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(showProof)))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return "medrights:v1:" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache described by cfg: memory only, or memory in front of
// disk when a directory is configured. It returns nil when caching is off.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.TTL, cleanupInterval(cfg.TTL))
	}
	return NewLayeredCache(cfg.TTL, cfg.Dir, cfg.TTL)
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 10*time.Minute {
		return 10 * time.Minute
	}
	return ttl
}
