// Package storagetest provides an in-memory storage.ObjectStore for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"Tunevault/storage"
)

// PublicBase 内存存储生成 URL 使用的地址
const PublicBase = "http://test.local"

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore 线程安全的内存对象存储
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]object

	// PutErr 非空时 Put 直接返回该错误
	PutErr error
}

var _ storage.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]object)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("%s: read %d bytes, want %d", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, contentType: contentType, modified: time.Now().UTC().Truncate(time.Second)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return &storage.Object{
		ReadSeekCloser: nopCloser{bytes.NewReader(o.data)},
		Info:           info(key, o),
	}, nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return info(key, o), nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) URL(key string) string {
	return storage.ObjectURL(PublicBase, key)
}

func (m *MemoryStore) KeyOf(rawURL string) (string, bool) {
	return storage.KeyFromURL(PublicBase, rawURL)
}

// Has reports whether key exists.
func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Keys 返回排好序的全部对象键
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Data 返回对象内容的副本
func (m *MemoryStore) Data(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.objects[key].data...)
}

func info(key string, o object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		LastModified: o.modified,
		ContentType:  o.contentType,
		ETag:         fmt.Sprintf("%x", len(o.data)),
	}
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
