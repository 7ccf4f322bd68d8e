package storage

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/absmach/robustfl/pkg/errors"
)

type inMemoryStorage struct {
	sync.Mutex

	data map[string][]byte
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		data: make(map[string][]byte),
	}
}

func (s *inMemoryStorage) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	s.data[key] = slices.Clone(value)

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if val, ok := s.data[key]; ok {
		return slices.Clone(val), nil
	}

	return nil, errors.ErrNotFound
}

func (s *inMemoryStorage) List(_ context.Context, prefix string) ([]KV, error) {
	s.Lock()
	defer s.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	result := make([]KV, len(keys))
	for i, k := range keys {
		result[i] = KV{Key: k, Value: slices.Clone(s.data[k])}
	}

	return result, nil
}

func (s *inMemoryStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	delete(s.data, key)

	return nil
}

func (s *inMemoryStorage) Close() error {
	return nil
}
