package graph

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
)

// CacheKey identifies a built graph. Revision is the store's latest event id,
// so any write invalidates every entry.
type CacheKey struct {
	ArtifactType domain.ArtifactType
	ArtifactID   int64
	MaxDepth     int
	Revision     int64
}

type Cache struct {
	lru *lru.Cache[CacheKey, Graph]
}

func NewCache(size int) (*Cache, error) {
	c, err := lru.New[CacheKey, Graph](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get is safe on a nil cache.
func (c *Cache) Get(k CacheKey) (Graph, bool) {
	if c == nil {
		return Graph{}, false
	}
	return c.lru.Get(k)
}

func (c *Cache) Add(k CacheKey, g Graph) {
	if c == nil {
		return
	}
	c.lru.Add(k, g)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
