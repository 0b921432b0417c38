// Package mock holds in-memory stand-ins for the external stores, with
// switches to make individual operations fail.
package mock

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"imghost/src/app"
	"imghost/src/repository"
)

type storedObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// ObjectStore is an in-memory app.ObjectStore.
type ObjectStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
	baseURL string

	// Now stamps LastModified; defaults to time.Now.
	Now func() time.Time

	PutErr    error
	DeleteErr error
	ListErr   error
	PingErr   error

	Puts    int
	Deletes int
}

func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{
		objects: make(map[string]storedObject),
		baseURL: baseURL,
		Now:     time.Now,
	}
}

func (s *ObjectStore) UploadFile(_ context.Context, key string, object io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Puts++
	if s.PutErr != nil {
		return s.PutErr
	}
	data, err := io.ReadAll(object)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch for %s: declared %d, read %d", key, size, len(data))
	}
	s.objects[key] = storedObject{data: data, contentType: contentType, lastModified: s.Now()}
	return nil
}

func (s *ObjectStore) DeleteFile(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *ObjectStore) ListFiles(_ context.Context, prefix string) ([]app.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	result := make([]app.ObjectInfo, 0, len(s.objects))
	for key, o := range s.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, app.ObjectInfo{Key: key, Size: int64(len(o.data)), LastModified: o.lastModified})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *ObjectStore) PublicURL(key string) string {
	return app.JoinPublicURL(s.baseURL, key)
}

func (s *ObjectStore) Ping(context.Context) error {
	return s.PingErr
}

// Put places an object directly, bypassing the error switches.
func (s *ObjectStore) Put(key string, data []byte, lastModified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedObject{data: data, lastModified: lastModified}
}

func (s *ObjectStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *ObjectStore) ContentType(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].contentType
}

func (s *ObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// MetadataStore wraps a real store and counts or fails mutations.
type MetadataStore struct {
	repository.MetadataStore

	mu        sync.Mutex
	PutErr    error
	DeleteErr error
	ListErr   error
	GetErr    error
	Puts      int
	Deletes   int
}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{MetadataStore: repository.NewInMemoryDB()}
}

func (m *MetadataStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MetadataStore.Get(ctx, key)
}

func (m *MetadataStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.Puts++
	err := m.PutErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MetadataStore.Put(ctx, key, value)
}

func (m *MetadataStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.Deletes++
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MetadataStore.Delete(ctx, key)
}

func (m *MetadataStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	err := m.ListErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MetadataStore.List(ctx, prefix)
}

// Raw writes a value without counting it, for seeding test fixtures.
func (m *MetadataStore) Raw(key string, value []byte) {
	_ = m.MetadataStore.Put(context.Background(), key, value)
}

func (m *MetadataStore) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Puts + m.Deletes
}
