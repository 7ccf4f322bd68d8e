package storage

import (
	"context"
	"fmt"

	"github.com/absmach/robustfl/pkg/storage/badger"
	"github.com/absmach/robustfl/pkg/storage/bolt"
)

type Config struct {
	Type string `env:"STORAGE_TYPE" envDefault:"memory" toml:"type" yaml:"type"`

	BadgerPath string `env:"STORAGE_BADGER_PATH" envDefault:"./data/badger"       toml:"badger_path" yaml:"badger_path"`
	BoltPath   string `env:"STORAGE_BOLT_PATH"   envDefault:"./data/robustfl.db" toml:"bolt_path"   yaml:"bolt_path"`
}

func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return &badgerAdapter{db: db}, nil
	case "bolt":
		db, err := bolt.NewDatabase(cfg.BoltPath)
		if err != nil {
			return nil, err
		}

		return &boltAdapter{db: db}, nil
	case "memory", "":
		return NewInMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

type badgerAdapter struct {
	db *badger.Database
}

func (a *badgerAdapter) Put(ctx context.Context, key string, value []byte) error {
	return a.db.Put(ctx, key, value)
}

func (a *badgerAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return a.db.Get(ctx, key)
}

func (a *badgerAdapter) List(ctx context.Context, prefix string) ([]KV, error) {
	entries, err := a.db.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	result := make([]KV, len(entries))
	for i, e := range entries {
		result[i] = KV{Key: e.Key, Value: e.Value}
	}

	return result, nil
}

func (a *badgerAdapter) Delete(ctx context.Context, key string) error {
	return a.db.Delete(ctx, key)
}

func (a *badgerAdapter) Close() error {
	return a.db.Close()
}

type boltAdapter struct {
	db *bolt.Database
}

func (a *boltAdapter) Put(ctx context.Context, key string, value []byte) error {
	return a.db.Put(ctx, key, value)
}

func (a *boltAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return a.db.Get(ctx, key)
}

func (a *boltAdapter) List(ctx context.Context, prefix string) ([]KV, error) {
	entries, err := a.db.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	result := make([]KV, len(entries))
	for i, e := range entries {
		result[i] = KV{Key: e.Key, Value: e.Value}
	}

	return result, nil
}

func (a *boltAdapter) Delete(ctx context.Context, key string) error {
	return a.db.Delete(ctx, key)
}

func (a *boltAdapter) Close() error {
	return a.db.Close()
}
