package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/adkservice/core"
)

func newRedisStore(t *testing.T, optFns ...func(o *RedisOptions)) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, optFns...), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	user := core.NewTextContent("user", "hi")
	require.NoError(t, store.AppendEvent(ctx, "s1", core.NewUserContentEvent("run-1", &user)))

	call := core.NewFunctionCallEvent("bot", "lookup", `{"q":"go"}`)
	require.NoError(t, store.AppendEvent(ctx, "s1", call))

	require.NoError(t, store.ApplyDelta(ctx, "s1", map[string]any{
		"topic": "go",
		"count": 2,
		"tags":  []string{"a", "b"},
	}))

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	events := sess.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "user", events[0].Author)
	assert.Equal(t, "hi", events[0].Content.Text())
	require.Len(t, events[1].GetFunctionCalls(), 1)
	assert.Equal(t, "lookup", events[1].GetFunctionCalls()[0].Name)

	state := sess.StateSnapshot()
	assert.Equal(t, "go", state["topic"])
	assert.EqualValues(t, 2, state["count"])
	assert.Equal(t, []any{"a", "b"}, state["tags"])
}

func TestRedisStore_LazyCreateAndReset(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	sess, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, sess.GetEvents())
	assert.True(t, mr.Exists(DefaultKeyPrefix+":fresh:meta"))

	require.NoError(t, store.ApplyDelta(ctx, "fresh", map[string]any{"k": "v"}))

	sess, err = store.Create(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, sess.StateSnapshot())

	sess, err = store.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, sess.StateSnapshot())
}

func TestRedisStore_MaxEventsAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, func(o *RedisOptions) {
		o.KeyPrefix = "test"
		o.MaxEvents = 2
		o.TTL = time.Minute
	})

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, store.AppendEvent(ctx, "s1", core.NewMessageEvent("bot", text)))
	}

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	events := sess.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "two", events[0].Content.Text())
	assert.Equal(t, "three", events[1].Content.Text())

	assert.Equal(t, time.Minute, mr.TTL("test:s1:events"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:s1:events"))
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.AppendEvent(ctx, "s1", core.NewMessageEvent("bot", "x")))
	require.NoError(t, store.Delete(ctx, "s1"))

	assert.False(t, mr.Exists(DefaultKeyPrefix+":s1:events"))
	assert.False(t, mr.Exists(DefaultKeyPrefix+":s1:meta"))
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = NewRedisStoreFromURL(context.Background(), "://not-a-url")
	assert.Error(t, err)
}
