package versioning

import (
	"context"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"
)

const (
	defaultNumCounters = 1e6 // 1M counters for admission policy
	defaultMaxCost     = 1e8 // 100MB of blob bytes
	defaultBufferItems = 64
)

type BlobCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func applyBlobCacheDefaults(cfg BlobCacheConfig) BlobCacheConfig {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = defaultBufferItems
	}
	return cfg
}

// CachedBlobStore puts a ristretto hot tier in front of a durable BlobStore.
// Concurrent misses for the same hash share one backing read.
type CachedBlobStore struct {
	backing BlobStore
	cache   *ristretto.Cache
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedBlobStore(backing BlobStore, cfg BlobCacheConfig) (*CachedBlobStore, error) {
	cfg = applyBlobCacheDefaults(cfg)

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &CachedBlobStore{backing: backing, cache: cache}, nil
}

func cacheKey(hash ContentHash) string {
	return string(hash[:])
}

func (s *CachedBlobStore) Get(ctx context.Context, hash ContentHash) ([]byte, error) {
	if value, ok := s.cache.Get(cacheKey(hash)); ok {
		if content, ok := value.([]byte); ok {
			s.hits.Add(1)
			blobCacheRequests.WithLabelValues("hit").Inc()
			return cloneBlobContent(content), nil
		}
	}
	s.misses.Add(1)
	blobCacheRequests.WithLabelValues("miss").Inc()

	// The shared fetch outlives any single caller; each caller still gives up
	// on its own ctx.
	fetch := s.group.DoChan(cacheKey(hash), func() (any, error) {
		content, err := s.backing.Get(context.WithoutCancel(ctx), hash)
		if err != nil {
			return nil, err
		}
		s.cache.Set(cacheKey(hash), content, int64(len(content))+1)
		return content, nil
	})
	select {
	case res := <-fetch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneBlobContent(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CachedBlobStore) Put(ctx context.Context, content []byte) (ContentHash, error) {
	hash, err := s.backing.Put(ctx, content)
	if err != nil {
		return ContentHash{}, err
	}
	s.cache.Set(cacheKey(hash), cloneBlobContent(content), int64(len(content))+1)
	return hash, nil
}

func (s *CachedBlobStore) Has(ctx context.Context, hash ContentHash) (bool, error) {
	if _, ok := s.cache.Get(cacheKey(hash)); ok {
		return true, nil
	}
	return s.backing.Has(ctx, hash)
}

func (s *CachedBlobStore) Delete(ctx context.Context, hash ContentHash) error {
	// Flush buffered sets first or a pending Set could resurrect the entry.
	s.cache.Wait()
	s.cache.Del(cacheKey(hash))
	return s.backing.Delete(ctx, hash)
}

func (s *CachedBlobStore) Stats(ctx context.Context) (BlobStats, error) {
	return s.backing.Stats(ctx)
}

// HitRatio reports hot-tier hits over all Get calls.
func (s *CachedBlobStore) HitRatio() float64 {
	hits, misses := s.hits.Load(), s.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Wait blocks until buffered cache writes are applied.
func (s *CachedBlobStore) Wait() {
	s.cache.Wait()
}

func (s *CachedBlobStore) Close() {
	s.cache.Close()
	if closer, ok := s.backing.(interface{ Close() error }); ok {
		closer.Close()
	}
}
