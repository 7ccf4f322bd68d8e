package storage

import "context"

// KV is one stored entry.
type KV struct {
	Key   string
	Value []byte
}

// Storage is a byte-oriented key value store. List returns entries whose key
// starts with prefix in ascending key order.
type Storage interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]KV, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
