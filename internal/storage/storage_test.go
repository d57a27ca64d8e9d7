package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-ledger/internal/config"
)

func TestOpenMemory(t *testing.T) {
	cfg := config.Config{Storage: config.StorageConfig{Driver: config.StorageDriverMemory}}

	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.False(t, s.Persistent())
	assert.NotNil(t, s.Notifications)
	assert.NotNil(t, s.Users)
	assert.NotNil(t, s.Members)
	assert.NotNil(t, s.Watchers)
	assert.NotNil(t, s.WorkPackages)
	assert.NoError(t, s.PingContext(context.Background()))
	assert.NoError(t, s.Close())
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Config{Storage: config.StorageConfig{Driver: "cassandra"}}

	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "cassandra")
}
