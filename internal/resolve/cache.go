package resolve

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cached wraps a Resolver with an LRU of successful resolutions. Failed
// lookups are not cached, so installing a missing package takes effect on the
// next resolve.
type Cached struct {
	resolver Resolver
	cache    *lru.Cache
}

const defaultCacheSize = 128

func NewCached(resolver Resolver, size int) (*Cached, error) {
	if size <= 0 {
		size = defaultCacheSize
	}

	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	return &Cached{resolver: resolver, cache: cache}, nil
}

func (c *Cached) Resolve(name string) (Package, error) {
	if v, ok := c.cache.Get(name); ok {
		return v.(Package), nil
	}

	pkg, err := c.resolver.Resolve(name)
	if err != nil {
		return Package{}, err
	}

	c.cache.Add(name, pkg)
	return pkg, nil
}
