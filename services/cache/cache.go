package cache

import (
	"time"
)

// CacheService stores short-lived crawler state such as rate-limit blocks
type CacheService interface {
	// Get retrieves a value, returning an error on a miss
	Get(key string) ([]byte, error)

	// Set stores a value that expires after expiration
	Set(key string, value []byte, expiration time.Duration) error
}
