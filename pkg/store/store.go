// Package store holds the engine's three bounded collections: pending plans (in memory,
// TTL and count bounded), the per-workspace audit log and per-workspace workflow
// templates (both durable through a persistence.KV), plus workspace policies.
//
// Every collection serializes its own read-evict-write cycle; collections do not share
// locks with each other.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the key is absent or has expired.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName indicates a workflow name that normalizes to nothing.
	ErrInvalidName = errors.New("invalid name")
)

// Key addresses one entry inside a workspace partition.
type Key struct {
	WorkspaceID string
	ID          string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.WorkspaceID, k.ID)
}

// Collection is the common surface of the bounded collections. Eviction is internal to
// each implementation; Sweep drops whatever has become evictable and reports how many
// entries it removed.
type Collection[V any] interface {
	Get(ctx context.Context, key Key) (V, error)
	Put(ctx context.Context, key Key, value V) error
	Delete(ctx context.Context, key Key) error
	Sweep(ctx context.Context) (int, error)
}
