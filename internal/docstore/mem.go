package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Object is a stored blob with its content type.
type Object struct {
	Body        []byte
	ContentType string
}

// MemStore is an in-memory Store. It records every Put so tests can assert
// on write counts as well as final contents.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	puts    map[string]int
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string]Object),
		puts:    make(map[string]int),
	}
}

func memKey(bucket, key string) string {
	return bucket + "/" + key
}

// Seed stores body without counting it as a pipeline write.
func (m *MemStore) Seed(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = Object{Body: body, ContentType: ContentTypeText}
}

func (m *MemStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	out := make([]byte, len(obj.Body))
	copy(out, obj.Body)
	return out, nil
}

func (m *MemStore) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := make([]byte, len(body))
	copy(b, body)
	m.objects[memKey(bucket, key)] = Object{Body: b, ContentType: contentType}
	m.puts[memKey(bucket, key)]++
	return nil
}

func (m *MemStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	full := memKey(bucket, prefix)
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, full) {
			keys = append(keys, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Object returns the stored object and whether it exists.
func (m *MemStore) Object(bucket, key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memKey(bucket, key)]
	return obj, ok
}

// PutCount returns how many times Put wrote bucket/key.
func (m *MemStore) PutCount(bucket, key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts[memKey(bucket, key)]
}
