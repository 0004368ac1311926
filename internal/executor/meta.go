package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/dataver/internal/facet"
	"github.com/roach88/dataver/internal/metrics"
	"github.com/roach88/dataver/internal/version"
)

// VersionMeta is what the executor needs to know about a version before
// it can bind a request to it.
type VersionMeta struct {
	VersionID string
	DataSetID string
	Label     string
	Status    version.Status
	Facets    *facet.Set
}

// MetaLoader loads the meta of one version from storage.
type MetaLoader interface {
	LoadMeta(ctx context.Context, versionID string) (*VersionMeta, error)
}

// MetaLoaderFunc adapts a function to MetaLoader.
type MetaLoaderFunc func(ctx context.Context, versionID string) (*VersionMeta, error)

// LoadMeta implements MetaLoader.
func (f MetaLoaderFunc) LoadMeta(ctx context.Context, versionID string) (*VersionMeta, error) {
	return f(ctx, versionID)
}

// MetaCache is an expiring LRU of version meta in front of a MetaLoader.
// Concurrent misses for the same version share one load.
//
// Only queryable versions are cached: their facet sets never change.
// Draft meta served to preview requests is loaded every time.
type MetaCache struct {
	loader  MetaLoader
	cache   *expirable.LRU[string, *VersionMeta]
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewMetaCache creates a cache of at most size versions, each kept for ttl.
func NewMetaCache(loader MetaLoader, size int, ttl time.Duration, m *metrics.Metrics) *MetaCache {
	if size <= 0 {
		size = 128
	}
	return &MetaCache{
		loader:  loader,
		cache:   expirable.NewLRU[string, *VersionMeta](size, nil, ttl),
		metrics: m,
	}
}

// Get returns the meta of versionID, loading it on a miss.
func (c *MetaCache) Get(ctx context.Context, versionID string) (*VersionMeta, error) {
	if meta, ok := c.cache.Get(versionID); ok {
		c.metrics.CacheHit()
		return meta, nil
	}
	c.metrics.CacheMiss()

	v, err, _ := c.group.Do(versionID, func() (any, error) {
		meta, err := c.loader.LoadMeta(ctx, versionID)
		if err != nil {
			return nil, err
		}
		if meta == nil || meta.Facets == nil {
			return nil, fmt.Errorf("version %s has no facet set", versionID)
		}
		if meta.Status.Queryable() {
			c.cache.Add(versionID, meta)
		}
		return meta, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	return v.(*VersionMeta), nil
}

// Remove evicts versionID, e.g. after it is deprecated.
func (c *MetaCache) Remove(versionID string) {
	c.cache.Remove(versionID)
}

// Len returns the number of cached versions.
func (c *MetaCache) Len() int {
	return c.cache.Len()
}
