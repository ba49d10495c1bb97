// Package relaystore mirrors relay.Session presence into Redis for
// observability across a fleet of relay processes. This is strictly a
// read-side mirror: the relay core's own in-memory
// relay.SessionManager remains the only place session state lives or
// is authoritative, so a mirror outage never affects relay behavior,
// and a process restart never resurrects a session from Redis — that
// would violate the no-persistence design of relay.Session itself.
package relaystore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "relay:session:"

// Snapshot is the observational record mirrored for one session.
type Snapshot struct {
	ID               string    `json:"id"`
	State            string    `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Mirror publishes session snapshots. Callers should treat errors as
// non-fatal; a mirror failure must never affect relay.Session
// behavior.
type Mirror interface {
	Publish(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Remove(ctx context.Context, sessionID string) error
	Close() error
}

// New returns a Redis-backed Mirror when addr is non-empty, or a
// noopMirror otherwise, so callers that never configure a Redis
// address get a working Mirror without a nil check at every call
// site.
func New(addr string) (Mirror, error) {
	if addr == "" {
		return noopMirror{}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &redisMirror{client: client}, nil
}

type redisMirror struct {
	client *redis.Client
}

func (m *redisMirror) Publish(ctx context.Context, snap Snapshot, ttl time.Duration) error {
	snap.UpdatedAt = time.Now()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, keyPrefix+snap.ID, data, ttl).Err()
}

func (m *redisMirror) Remove(ctx context.Context, sessionID string) error {
	return m.client.Del(ctx, keyPrefix+sessionID).Err()
}

func (m *redisMirror) Close() error {
	return m.client.Close()
}

type noopMirror struct{}

func (noopMirror) Publish(context.Context, Snapshot, time.Duration) error { return nil }
func (noopMirror) Remove(context.Context, string) error                   { return nil }
func (noopMirror) Close() error                                           { return nil }
