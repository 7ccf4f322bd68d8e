package badger

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/robustfl/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrUpdate       = errors.New("update error")
	ErrDelete       = errors.New("delete error")
)

type Entry struct {
	Key   string
	Value []byte
}

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

// NewInMemoryDatabase opens a badger instance that keeps everything in RAM.
func NewInMemoryDatabase() (*Database, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, pkgerrors.ErrEmptyKey
	}
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, pkgerrors.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) Put(_ context.Context, key string, val []byte) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

func (d *Database) Delete(_ context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	return nil
}

// List walks keys with the given prefix in byte order.
func (d *Database) List(_ context.Context, prefix string) ([]Entry, error) {
	var items []Entry
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, Entry{Key: string(item.KeyCopy(nil)), Value: val})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return items, nil
}
