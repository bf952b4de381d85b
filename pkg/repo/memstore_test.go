package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"s3repo/internal/errs"
	"s3repo/pkg/storage"
)

// memStore is an in-memory storage.Storage that records mutating calls.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	ops     []string
	failPut map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, failPut: map[string]error{}}
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errs.NotFound("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Put(ctx context.Context, localPath string, key string, v storage.Visibility) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPut[key]; err != nil {
		return err
	}
	m.objects[key] = data
	m.ops = append(m.ops, "put "+key)
	return nil
}

func (m *memStore) Stat(ctx context.Context, key string) (storage.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.FileInfo{}, errs.NotFound("object not found: " + key)
	}
	sum := sha256.Sum256(data)
	return storage.FileInfo{Name: key, Size: int64(len(data)), SHA256: hex.EncodeToString(sum[:])}, nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]storage.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.FileInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.FileInfo{Name: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.ops = append(m.ops, "delete "+key)
	return nil
}

func (m *memStore) GetPath(key string) string { return "mem://" + key }

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) resetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}
