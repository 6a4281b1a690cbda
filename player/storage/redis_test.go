package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("MUSICPLAYER_TEST_REDIS")
	if addr == "" {
		t.Skip("MUSICPLAYER_TEST_REDIS not set")
	}

	store, err := NewRedisStore(addr, "", 0)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "musicplayer-test:" + uuid.NewString()
	defer store.Delete(ctx, key)

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, key, `["a"]`))
	value, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `["a"]`, value)

	require.NoError(t, store.Delete(ctx, key))
	_, found, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}
