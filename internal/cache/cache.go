package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is the byte cache used for geocoding and search responses. The
// profile cache is a separate, session-scoped structure owned by
// internal/profile; it does not go through this interface.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// GeocodeKey builds the cache key for a "city, country" geocoding query.
func GeocodeKey(query string) string {
	return "metroscope:geocode:v1:" + digest(query)
}

// SearchKey builds the cache key for a search query.
func SearchKey(query string) string {
	return "metroscope:search:v1:" + digest(query)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
