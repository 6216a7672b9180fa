package index

import (
	"github.com/hauke96/sigolo/v2"
	"sync"
	"tiledosm/common"
	ownOsm "tiledosm/osm"
)

type cacheKey struct {
	kind    ownOsm.Kind
	zoom    uint32
	localId uint64
}

// LoadFunc loads the index of a tile. Returning a nil index (and no error) means the tile has no such index.
type LoadFunc func(kind ownOsm.Kind, tile common.Tile) (*Index, error)

// Cache holds the loaded indices of all tiles. Entries are never evicted since indices of a database are immutable.
// Missing indices are cached as well. The cache uses a single mutex and can be used in concurrent goroutines.
type Cache struct {
	entries map[cacheKey]*Index
	mutex   *sync.Mutex
	load    LoadFunc
}

func NewCache(load LoadFunc) *Cache {
	return &Cache{
		entries: map[cacheKey]*Index{},
		mutex:   &sync.Mutex{},
		load:    load,
	}
}

// GetOrLoad returns the cached index of the tile or loads it. The index is nil when the tile has no index of the kind.
// Errors are not cached.
func (c *Cache) GetOrLoad(kind ownOsm.Kind, tile common.Tile) (*Index, error) {
	key := cacheKey{kind: kind, zoom: tile.Zoom, localId: tile.LocalId()}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if index, ok := c.entries[key]; ok {
		return index, nil
	}

	index, err := c.load(kind, tile)
	if err != nil {
		return nil, err
	}

	sigolo.Tracef("Cache %s index of tile %s (exists=%t)", kind, tile, index != nil)
	c.entries[key] = index
	return index, nil
}

func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Close releases all cached indices and empties the cache.
func (c *Cache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var firstErr error
	for key, index := range c.entries {
		if index != nil {
			if err := index.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(c.entries, key)
	}
	return firstErr
}
