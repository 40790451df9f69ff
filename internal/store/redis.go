package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each document under "<prefix>:<doc>".
type RedisBackend struct {
	rdb      redis.UniversalClient
	prefix   string
	location string
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix, location: "redis:" + prefix}
}

// Init checks that the server is reachable.
func (r *RedisBackend) Init(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return &IOError{Op: "failed to reach redis", Err: err}
	}
	return nil
}

func (r *RedisBackend) Load(ctx context.Context, doc Doc) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key(doc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &IOError{Op: "failed to read", Doc: doc, Err: err}
	}
	return data, nil
}

// Save writes all records inside one MULTI/EXEC.
func (r *RedisBackend) Save(ctx context.Context, records ...Record) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			pipe.Set(ctx, r.key(rec.Doc), rec.Data, 0)
		}
		return nil
	})
	if err != nil {
		return &IOError{Op: "failed to write documents", Err: err}
	}
	return nil
}

func (r *RedisBackend) Location() string { return r.location }

func (r *RedisBackend) Close() error { return r.rdb.Close() }

func (r *RedisBackend) key(doc Doc) string {
	return r.prefix + ":" + string(doc)
}
