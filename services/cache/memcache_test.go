package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sjsage522/hotpostcollector/pkg/errors"
)

// Requires a memcached on localhost:11211, skipped otherwise
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("theqoo_rate_limited_test", []byte("300"), 2*time.Second)
	require.NoError(t, err)

	value, err := mc.Get("theqoo_rate_limited_test")
	require.NoError(t, err)
	assert.Equal(t, "300", string(value))

	_, err = mc.Get("theqoo_rate_limited_test_absent")
	assert.ErrorIs(t, err, ErrMiss)

	// expiry is rounded up to whole seconds, so a sub-second block still lands
	require.NoError(t, mc.Set("theqoo_rate_limited_short", []byte("1"), 200*time.Millisecond))
	_, err = mc.Get("theqoo_rate_limited_short")
	assert.NoError(t, err)
}

func TestMemcacheServiceUnreachable(t *testing.T) {
	mc := NewMemcacheService("127.0.0.1:1")

	err := mc.Ping()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCache))

	_, err = mc.Get("anything")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
