package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"courtclip/internal/services"
	"courtclip/internal/storage"
)

// MemoryStore is an in-memory storage.Store. Listings are sorted by key like
// S3 and the local backend.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	order   []string
	fail    map[string]error
	calls   []string
	// Now stamps new objects. Defaults to time.Now.
	Now func() time.Time
}

type memObject struct {
	data     []byte
	modified time.Time
}

var _ storage.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memObject{}, fail: map[string]error{}, Now: time.Now}
}

// Put stores data at key with an explicit modification time.
func (m *MemoryStore) Put(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, data, modified)
}

func (m *MemoryStore) put(key string, data []byte, modified time.Time) {
	if _, ok := m.objects[key]; !ok {
		m.order = append(m.order, key)
	}
	m.objects[key] = memObject{data: append([]byte(nil), data...), modified: modified}
}

// FailOn makes operation ("list", "download", "upload", "delete", "exists",
// "url", "read", "write") on key return err. An empty key matches every key.
func (m *MemoryStore) FailOn(operation, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[operation+"|"+key] = err
}

// Has reports whether key is stored.
func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Get returns the stored bytes for key.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, ok
}

// Keys returns every stored key, sorted.
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

// Calls returns the "operation key" log of every call made.
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemoryStore) check(operation, key string) error {
	m.calls = append(m.calls, operation+" "+key)
	if err, ok := m.fail[operation+"|"+key]; ok {
		return err
	}
	if err, ok := m.fail[operation+"|"]; ok {
		return err
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string, recursive bool) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("list", prefix); err != nil {
		return nil, err
	}
	p := strings.Trim(prefix, "/")
	if p != "" {
		p += "/"
	}
	var out []storage.Object
	for _, key := range m.order {
		obj, ok := m.objects[key]
		if !ok || !strings.HasPrefix(key, p) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(key, p), "/") {
			continue
		}
		out = append(out, storage.Object{Key: key, Size: int64(len(obj.data)), Modified: obj.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Download(_ context.Context, key, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("download", key); err != nil {
		return err
	}
	obj, ok := m.objects[key]
	if !ok {
		return services.Wrap(services.ErrNotFound, "storage", "download", key, nil)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, obj.data, 0o644)
}

func (m *MemoryStore) Upload(_ context.Context, localPath, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("upload", key); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "storage", "upload", key, err)
	}
	m.put(key, data, m.Now())
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete", key); err != nil {
		return err
	}
	delete(m.objects, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("exists", key); err != nil {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) PublicURL(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("url", key); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://clips.test/%s", key), nil
}

func (m *MemoryStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("read", key); err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "storage", "read", key, nil)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) WriteObject(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("write", key); err != nil {
		return err
	}
	m.put(key, data, m.Now())
	return nil
}
