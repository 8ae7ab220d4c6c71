package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"
)

// MemoryStorage is an in-memory Storage used by tests and local runs.
// It is safe for concurrent use.
type MemoryStorage struct {
	files map[string]memoryFile
	fail  map[string]error
	mu    sync.RWMutex
}

type memoryFile struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files: make(map[string]memoryFile),
		fail:  make(map[string]error),
	}
}

var _ Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	if err := s.injected(key); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[key] = memoryFile{
		data:        data,
		contentType: contentType,
		metadata:    normalizeMetadata(metadata),
	}
	return nil
}

func (s *MemoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.injected(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[key]
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(file.data)), nil
}

func (s *MemoryStorage) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.injected(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[key]
	if !exists {
		return nil, fmt.Errorf("head %s: %w", key, ErrNotFound)
	}
	return &ObjectInfo{
		Key:         key,
		ContentType: file.contentType,
		Size:        int64(len(file.data)),
		Metadata:    maps.Clone(file.metadata),
	}, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.injected(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.files[key]
	return exists, nil
}

func (s *MemoryStorage) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// FailOn makes every operation on key return err. A nil err clears it.
func (s *MemoryStorage) FailOn(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, key)
		return
	}
	s.fail[key] = err
}

func (s *MemoryStorage) injected(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail[key]
}

// Put stores data with metadata directly (test helper).
func (s *MemoryStorage) Put(key, contentType string, data []byte, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = memoryFile{data: data, contentType: contentType, metadata: normalizeMetadata(metadata)}
}

// GetData returns the raw data for a key (test helper).
func (s *MemoryStorage) GetData(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[key]
	if !exists {
		return nil, false
	}
	return file.data, true
}

// Keys returns the stored keys in sorted order (test helper).
func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of stored files (test helper).
func (s *MemoryStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
