// Package store provides the session-scoped persistence slots: small named
// blobs kept in SQLite, Redis, MongoDB or memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("slot not found")

// Slot is a key/value persistence area.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend is a Slot that owns a connection.
type Backend interface {
	Slot
	io.Closer
}

// Well-known keys.
const ScoresKey = "scores"

// AnswersKey is the slot holding a session's answers.
func AnswersKey(sessionID string) string { return "session/" + sessionID + "/answers" }

// SequenceKey is the slot holding a session's shuffled question order.
func SequenceKey(sessionID string) string { return "session/" + sessionID + "/sequence" }

// Config selects and configures a slot backend.
type Config struct {
	Backend  string // sqlite, redis, mongo, memory
	DBPath   string
	RedisURL string
	MongoURI string
	MongoDB  string
	TTL      time.Duration
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return New(cfg.DBPath)
	case "redis":
		return NewRedis(ctx, cfg.RedisURL, cfg.TTL)
	case "mongo":
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown slot backend %q", cfg.Backend)
}
