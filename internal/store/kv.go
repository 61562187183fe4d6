package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore is the key-value persistence collaborator: load returns the
// bytes for a key if present, save replaces them.
type BlobStore interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
}

// FileBlobStore keeps each key as a file at the key's path.
type FileBlobStore struct{}

// Load reads the file for key. A missing file is not an error; ok is
// false.
func (FileBlobStore) Load(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(key)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %q: %w", key, err)
	}
	return data, true, nil
}

// MemoryBlobStore keeps blobs in a map. Useful with :memory: databases
// and in tests.
type MemoryBlobStore struct {
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Load returns the stored bytes for key.
func (s *MemoryBlobStore) Load(key string) ([]byte, bool, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

// Save replaces the bytes for key.
func (s *MemoryBlobStore) Save(key string, data []byte) error {
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Save writes the bytes for key through a uniquely named temp file and a
// rename, so readers never observe a partial write.
func (FileBlobStore) Save(key string, data []byte) error {
	dir := filepath.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	tmp := key + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	if err := os.Rename(tmp, key); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}
