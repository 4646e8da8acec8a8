package arbor

import lru "github.com/hashicorp/golang-lru"

// accessorCache keeps the accessor returned for a container path stable:
// asking for the same unreplaced container twice yields the same *Node.
// Entries are keyed by rendered path and validated by container identity, so
// a replaced container misses and gets a fresh accessor. The cache holds
// paths and pointer-sized identities only, never the data, so it cannot keep
// detached subtrees alive; stale entries age out of the LRU.
type accessorCache struct {
	entries *lru.ARCCache
}

type cacheEntry struct {
	id   uintptr
	node *Node
}

// defaultAccessorCacheSize bounds the cache when WithAccessorCacheSize is
// not given.
const defaultAccessorCacheSize = 1024

func newAccessorCache(size int) *accessorCache {
	entries, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return &accessorCache{entries: entries}
}

// lookup returns the cached accessor for path if its recorded identity still
// matches the container currently living there.
func (c *accessorCache) lookup(path string, id uintptr) (*Node, bool) {
	v, ok := c.entries.Get(path)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if entry.id != id {
		c.entries.Remove(path)
		return nil, false
	}
	return entry.node, true
}

func (c *accessorCache) store(path string, id uintptr, node *Node) {
	c.entries.Add(path, cacheEntry{id: id, node: node})
}
