// Package cache keeps user profiles in Redis in front of Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/user"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ProfileLoader interface {
	Profile(ctx context.Context, id identity.ID) (user.Profile, error)
}

// ProfileCache is a read-through cache. Redis failures fall back to the
// loader; missing users are never cached.
//
// Every id has a version counter bumped by Invalidate. A loaded profile is
// only written back if the version it was read under is still current, so a
// read racing an update cannot put the old profile back.
type ProfileCache struct {
	rdb    *redis.Client
	loader ProfileLoader
	ttl    time.Duration
	logger *zap.Logger
}

func NewProfileCache(rdb *redis.Client, loader ProfileLoader, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	return &ProfileCache{rdb: rdb, loader: loader, ttl: ttl, logger: logger.Named("profile-cache")}
}

func key(id identity.ID) string { return "profile:" + string(id) }

func versionKey(id identity.ID) string { return "profile:" + string(id) + ":v" }

var errStaleProfile = errors.New("profile changed while loading")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func version(ctx context.Context, cmd getter, id identity.ID) (int64, error) {
	v, err := cmd.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *ProfileCache) Get(ctx context.Context, id identity.ID) (user.Profile, error) {
	seen, verErr := version(ctx, c.rdb, id)
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var p user.Profile
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return p, nil
		}
		c.logger.Warn("corrupt cached profile", zap.String("identity", string(id)))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("redis get", zap.String("identity", string(id)), zap.Error(err))
	}

	p, err := c.loader.Profile(ctx, id)
	if err != nil {
		return user.Profile{}, err
	}

	if verErr != nil {
		return p, nil
	}
	if err := c.store(ctx, id, p, seen); err != nil {
		if errors.Is(err, errStaleProfile) || errors.Is(err, redis.TxFailedErr) {
			c.logger.Debug("skipped caching stale profile", zap.String("identity", string(id)))
		} else {
			c.logger.Warn("redis set", zap.String("identity", string(id)), zap.Error(err))
		}
	}
	return p, nil
}

// store writes p only while the version is still seen.
func (c *ProfileCache) store(ctx context.Context, id identity.ID, p user.Profile, seen int64) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := version(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != seen {
			return errStaleProfile
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), raw, c.ttl)
			return nil
		})
		return err
	}, versionKey(id))
}

// Invalidate drops the cached profile and bumps its version, which turns any
// load already in flight into a no-op.
func (c *ProfileCache) Invalidate(ctx context.Context, id identity.ID) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(id))
		pipe.Del(ctx, key(id))
		return nil
	})
	return err
}

func (c *ProfileCache) DisplayName(ctx context.Context, id identity.ID) (string, error) {
	p, err := c.Get(ctx, id)
	return p.Name, err
}

func (c *ProfileCache) PushToken(ctx context.Context, id identity.ID) (string, error) {
	p, err := c.Get(ctx, id)
	return p.PushToken, err
}
