// Package store persists bundlewatch's state as whole JSON documents.
//
// Each document (history, alerts, thresholds) is read and written in full;
// there is no incremental append at this layer. A Backend decides how the
// documents of one Save call are written: the JSON file backend replaces
// each file atomically but independently, while the SQLite and Redis
// backends write all of them in a single transaction.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Doc names a persisted document.
type Doc string

const (
	DocHistory    Doc = "history"
	DocAlerts     Doc = "alerts"
	DocThresholds Doc = "thresholds"
)

// Docs lists every document a backend may hold.
var Docs = []Doc{DocHistory, DocAlerts, DocThresholds}

// Record is one document body to write.
type Record struct {
	Doc  Doc
	Data []byte
}

// Backend is a single-writer document store. Load returns ErrNotFound when
// the document has never been written.
type Backend interface {
	Init(ctx context.Context) error
	Load(ctx context.Context, doc Doc) ([]byte, error)
	Save(ctx context.Context, records ...Record) error
	Location() string
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// DefaultRedisPrefix namespaces the Redis keys when no prefix is configured.
const DefaultRedisPrefix = "bundlewatch"

// Options selects and configures a backend.
type Options struct {
	Kind          string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the backend described by opts. It does not touch storage;
// call Init before the first Save.
func Open(opts Options) (Backend, error) {
	switch opts.Kind {
	case "", KindJSON:
		return NewFile(opts.Dir), nil
	case KindSQLite:
		return NewSQLite(filepath.Join(opts.Dir, "history.db"))
	case KindRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		prefix := opts.RedisPrefix
		if prefix == "" {
			prefix = DefaultRedisPrefix
		}
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		b := NewRedis(client, prefix)
		b.location = fmt.Sprintf("redis://%s/%s", opts.RedisAddr, prefix)
		return b, nil
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want json, sqlite, redis or memory)", opts.Kind)
	}
}
