package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, opts...), mr
}

func TestRedisStorePutAndGet(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	session := sampleSession("sess-1", created)
	session.RecordAnchor(1, "Would you help?", "No.", created)
	require.NoError(t, store.Put(ctx, session))

	loaded, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", loaded.ID)
	assert.Equal(t, "mock-model", loaded.Model)
	assert.Len(t, loaded.Messages, 2)
	assert.True(t, loaded.CreatedAt.Equal(created))

	require.Len(t, loaded.AnchorResponses[1], 1)
	assert.Equal(t, "No.", loaded.AnchorResponses[1][0].Response)
}

func TestRedisStoreGetNotFound(t *testing.T) {
	store, _ := setupRedisStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRedisStorePutRejectsInvalid(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Put(ctx, nil), ErrInvalidSession)
	assert.ErrorIs(t, store.Put(ctx, &Session{}), ErrInvalidID)
}

func TestRedisStoreList(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, sampleSession("oldest", base)))
	require.NoError(t, store.Put(ctx, sampleSession("newest", base.Add(2*time.Minute))))
	require.NoError(t, store.Put(ctx, sampleSession("middle", base.Add(time.Minute))))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "newest", sessions[0].ID)
	assert.Equal(t, "oldest", sessions[2].ID)
}

func TestRedisStoreListEmpty(t *testing.T) {
	store, _ := setupRedisStore(t)

	sessions, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleSession("sess-1", time.Now().UTC())))
	require.NoError(t, store.Delete(ctx, "sess-1"))

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "sess-1"), ErrNotFound)
}

func TestRedisStoreFork(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, sampleSession("sess-1", created)))

	forked, err := store.Fork(ctx, "sess-1", "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", forked.ID)
	assert.True(t, forked.CreatedAt.After(created))

	// Both copies exist independently.
	source, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", source.ID)
	assert.True(t, source.CreatedAt.Equal(created))

	_, err = store.Fork(ctx, "missing", "sess-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := setupRedisStore(t, WithTTL(100*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleSession("sess-1", time.Now().UTC())))

	_, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreCustomPrefix(t *testing.T) {
	store, mr := setupRedisStore(t, WithPrefix("decaylab"))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleSession("sess-1", time.Now().UTC())))

	assert.Contains(t, mr.Keys(), "decaylab:session:sess-1")
}
