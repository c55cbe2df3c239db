package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MockObjectStore is an in-memory ObjectStore for tests.
type MockObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// UploadErr, SignErr, and DeleteErr force the corresponding operation to
	// fail when set.
	UploadErr error
	SignErr   error
	DeleteErr error
}

// NewMockObjectStore creates an empty in-memory object store.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: make(map[string][]byte)}
}

func (m *MockObjectStore) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MockObjectStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.SignErr != nil {
		return "", m.SignErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s does not exist", key)
	}
	return fmt.Sprintf("https://storage.example.com/%s?expires=%d", key, int64(ttl.Seconds())), nil
}

func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns the stored bytes for key, if present.
func (m *MockObjectStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
