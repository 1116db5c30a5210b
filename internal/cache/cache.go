package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Keys() []string
}

// CacheKey generates a cache key from a query and its retrieval depth.
// Queries differing only in case or surrounding space share a key.
func CacheKey(query string, topK int) string {
	normalized := strings.ToLower(strings.TrimSpace(query)) + "|" + strconv.Itoa(topK)
	hash := sha256.Sum256([]byte(normalized))
	return "claimcheck:v1:" + hex.EncodeToString(hash[:])
}
