package cache

import (
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"sjsage522/hotpostcollector/logger"
	apperrors "sjsage522/hotpostcollector/pkg/errors"
)

const defaultMemcacheTimeout = 500 * time.Millisecond

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = memcache.ErrCacheMiss

// MemcacheService implements CacheService on memcached
type MemcacheService struct {
	client *memcache.Client
	addr   string
	log    *logger.Logger
}

// NewMemcacheService creates a memcache backed cache for serverAddr
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = defaultMemcacheTimeout
	return &MemcacheService{
		client: client,
		addr:   serverAddr,
		log:    logger.ForCache().WithField("addr", serverAddr),
	}
}

// Ping checks that the server is reachable
func (m *MemcacheService) Ping() error {
	if err := m.client.Ping(); err != nil {
		return apperrors.NewCache("", "memcache unreachable at "+m.addr, err)
	}
	return nil
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, ErrMiss
		}
		m.log.Warn().Err(err).Str("key", key).Msg("Memcache get failed")
		return nil, apperrors.NewCache("", "memcache get "+key, err)
	}
	return item.Value, nil
}

// Set stores a value with an expiration, rounded up to whole seconds
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	seconds := int32(expiration / time.Second)
	if expiration%time.Second != 0 {
		seconds++
	}
	err := m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: seconds,
	})
	if err != nil {
		return apperrors.NewCache("", "memcache set "+key, err)
	}
	m.log.Debug().Str("key", key).Int32("ttl_seconds", seconds).Msg("Memcache value stored")
	return nil
}
