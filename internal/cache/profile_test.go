package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/user"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingLoader struct {
	profiles map[identity.ID]user.Profile
	calls    int
	// afterRead runs once the row has been read, before it is returned.
	afterRead func()
}

func (l *countingLoader) Profile(_ context.Context, id identity.ID) (user.Profile, error) {
	l.calls++
	p, ok := l.profiles[id]
	if l.afterRead != nil {
		l.afterRead()
	}
	if !ok {
		return user.Profile{}, db.ErrNotFound
	}
	return p, nil
}

func setup(t *testing.T) (*ProfileCache, *countingLoader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	loader := &countingLoader{profiles: map[identity.ID]user.Profile{
		"u1": {ID: "u1", Name: "Alice", PushToken: "tok-a"},
	}}
	return NewProfileCache(rdb, loader, time.Minute, zap.NewNop()), loader, mr
}

func TestGet_ReadsThrough(t *testing.T) {
	req := require.New(t)
	c, loader, mr := setup(t)
	ctx := context.Background()

	// Given a cold cache
	name, err := c.DisplayName(ctx, "u1")
	req.NoError(err)
	req.Equal("Alice", name)
	req.True(mr.Exists("profile:u1"))

	// When read again
	token, err := c.PushToken(ctx, "u1")

	// Then Redis serves it
	req.NoError(err)
	req.Equal("tok-a", token)
	req.Equal(1, loader.calls)

	// And it expires
	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "u1")
	req.NoError(err)
	req.Equal(2, loader.calls)
}

func TestGet_MissingUserIsNotCached(t *testing.T) {
	req := require.New(t)
	c, loader, mr := setup(t)

	_, err := c.Get(context.Background(), "ghost")

	req.ErrorIs(err, db.ErrNotFound)
	req.False(mr.Exists("profile:ghost"))
	req.Equal(1, loader.calls)
}

func TestInvalidate(t *testing.T) {
	req := require.New(t)
	c, loader, mr := setup(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	req.NoError(err)
	loader.profiles["u1"] = user.Profile{ID: "u1", Name: "Alice", PushToken: "tok-b"}

	req.NoError(c.Invalidate(ctx, "u1"))
	req.False(mr.Exists("profile:u1"))

	token, err := c.PushToken(ctx, "u1")
	req.NoError(err)
	req.Equal("tok-b", token)
}

func TestGet_FallsBackWhenRedisIsDown(t *testing.T) {
	req := require.New(t)
	c, loader, mr := setup(t)
	mr.Close()

	name, err := c.DisplayName(context.Background(), "u1")

	req.NoError(err)
	req.Equal("Alice", name)
	req.Equal(1, loader.calls)
}

func TestGet_LoadRacingUpdateDoesNotCacheOldProfile(t *testing.T) {
	req := require.New(t)
	c, loader, mr := setup(t)
	ctx := context.Background()

	// Given a push token update that lands while a cold read is loading the
	// old row
	loader.afterRead = func() {
		loader.afterRead = nil
		loader.profiles["u1"] = user.Profile{ID: "u1", Name: "Alice", PushToken: "tok-b"}
		req.NoError(c.Invalidate(ctx, "u1"))
	}

	// When the racing read finishes
	p, err := c.Get(ctx, "u1")

	// Then it returns what it read but does not cache it
	req.NoError(err)
	req.Equal("tok-a", p.PushToken)
	req.False(mr.Exists("profile:u1"))

	// And the next read sees the new token and caches it
	token, err := c.PushToken(ctx, "u1")
	req.NoError(err)
	req.Equal("tok-b", token)
	req.True(mr.Exists("profile:u1"))
}
