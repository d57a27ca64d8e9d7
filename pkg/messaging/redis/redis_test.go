package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigOptions(t *testing.T) {
	cfg := Config{
		URL:          "redis://:secret@cache.internal:6380/2",
		MaxRetries:   4,
		RetryBackoff: 50 * time.Millisecond,
		PoolSize:     20,
		MinIdleConns: 3,
	}

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, opts.MinRetryBackoff)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 3, opts.MinIdleConns)
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker(Config{URL: "http://not-redis"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}
