package versioning

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobCorrupt  = errors.New("blob content does not match its hash")
)

// BlobStore is a write-once store keyed by content hash. Put of bytes that
// are already present is a no-op, so concurrent writers of the same blob
// never conflict.
type BlobStore interface {
	Get(ctx context.Context, hash ContentHash) ([]byte, error)
	Put(ctx context.Context, content []byte) (ContentHash, error)
	Has(ctx context.Context, hash ContentHash) (bool, error)
	Delete(ctx context.Context, hash ContentHash) error
	Stats(ctx context.Context) (BlobStats, error)
}

type BlobStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[ContentHash][]byte
	size  int64
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs: make(map[ContentHash][]byte),
	}
}

func (s *MemoryBlobStore) Get(_ context.Context, hash ContentHash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[hash]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return cloneBlobContent(content), nil
}

func cloneBlobContent(content []byte) []byte {
	result := make([]byte, len(content))
	copy(result, content)
	return result
}

func (s *MemoryBlobStore) Put(ctx context.Context, content []byte) (ContentHash, error) {
	if err := ctx.Err(); err != nil {
		return ContentHash{}, err
	}
	hash := ComputeContentHash(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[hash]; exists {
		return hash, nil
	}

	s.blobs[hash] = cloneBlobContent(content)
	s.size += int64(len(content))
	return hash, nil
}

func (s *MemoryBlobStore) Has(_ context.Context, hash ContentHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[hash]
	return ok, nil
}

func (s *MemoryBlobStore) Delete(_ context.Context, hash ContentHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, ok := s.blobs[hash]
	if !ok {
		return ErrBlobNotFound
	}

	s.size -= int64(len(content))
	delete(s.blobs, hash)
	return nil
}

func (s *MemoryBlobStore) Stats(_ context.Context) (BlobStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BlobStats{Count: len(s.blobs), Bytes: s.size}, nil
}

func (s *MemoryBlobStore) Hashes() []ContentHash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make([]ContentHash, 0, len(s.blobs))
	for hash := range s.blobs {
		hashes = append(hashes, hash)
	}
	return hashes
}
