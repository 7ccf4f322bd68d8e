package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	pkgerrors "github.com/absmach/robustfl/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	ErrDBConnection = errors.New("bolt database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrUpdate       = errors.New("update error")
	ErrDelete       = errors.New("delete error")
)

var defaultBucket = []byte("robustfl")

type Entry struct {
	Key   string
	Value []byte
}

type Database struct {
	db     *bbolt.DB
	bucket []byte
}

func NewDatabase(path string) (*Database, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db, bucket: defaultBucket}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, pkgerrors.ErrEmptyKey
	}
	var val []byte
	err := d.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(d.bucket).Get([]byte(key))
		if v == nil {
			return pkgerrors.ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		val = slices.Clone(v)

		return nil
	})
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return val, nil
}

func (d *Database) Put(_ context.Context, key string, val []byte) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}
	err := d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(d.bucket).Put([]byte(key), val)
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
	err := d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(d.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	return nil
}

func (d *Database) List(_ context.Context, prefix string) ([]Entry, error) {
	var items []Entry
	p := []byte(prefix)
	err := d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(d.bucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			items = append(items, Entry{Key: string(k), Value: slices.Clone(v)})
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return items, nil
}
