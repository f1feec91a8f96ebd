// Package memory keeps grid debug artifacts in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Object is a stored artifact.
type Object struct {
	ContentType string
	Data        []byte
}

// DefaultMaxObjects is the artifact count a server-wired BlobStore retains.
const DefaultMaxObjects = 64

// BlobStore stores artifacts in-memory and returns pseudo URIs. A positive
// maxObjects evicts the oldest keys once the store is full.
type BlobStore struct {
	mu         sync.RWMutex
	prefix     string
	maxObjects int
	order      []string
	objects    map[string]Object
}

// NewBlobStore creates a new in-memory blob store. A non-empty prefix is
// prepended to every path.
func NewBlobStore(prefix string) *BlobStore {
	return &BlobStore{
		prefix:  strings.Trim(prefix, "/"),
		objects: make(map[string]Object),
	}
}

// NewBoundedBlobStore is NewBlobStore holding at most maxObjects artifacts.
func NewBoundedBlobStore(prefix string, maxObjects int) *BlobStore {
	s := NewBlobStore(prefix)
	s.maxObjects = maxObjects
	return s
}

// PutObject persists a copy of the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	key := s.key(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; !exists {
		s.order = append(s.order, key)
	}
	s.objects[key] = Object{ContentType: contentType, Data: byteData}
	for s.maxObjects > 0 && len(s.order) > s.maxObjects {
		delete(s.objects, s.order[0])
		s.order = s.order[1:]
	}
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns the object stored under key (prefix included).
func (s *BlobStore) Get(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	return Object{ContentType: obj.ContentType, Data: append([]byte(nil), obj.Data...)}, true
}

// Keys lists stored keys in sorted order.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *BlobStore) key(path string) string {
	path = strings.TrimLeft(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}
