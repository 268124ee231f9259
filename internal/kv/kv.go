// Package kv provides the key-value storage backend every document lives in.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is the full storage contract the services need: plain get/put/delete
// plus a prefix scan. No transactions and no compare-and-swap; concurrent
// writers against the same key are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
