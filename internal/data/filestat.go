package data

import (
	"container/list"
	"os"
	"sync"
	"time"
)

const (
	fileStatTTL      = 300 * time.Second
	fileStatCapacity = 1000
)

type fileStatEntry struct {
	path    string
	mtime   int64
	cachedAt time.Time
}

// FileStatCache caches file modification times with a short TTL and an
// LRU eviction policy on capacity, so repeated CacheKey computations for
// the same path don't repeatedly hit the filesystem.
type FileStatCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

// NewFileStatCache builds a FileStatCache with a 300s TTL and a
// 1000-entry capacity.
func NewFileStatCache() *FileStatCache {
	return &FileStatCache{
		ttl:      fileStatTTL,
		capacity: fileStatCapacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// GetMtime returns the cached mtime (seconds since epoch) for path,
// stat'ing the file only if the cache has no fresh entry. A stat failure
// propagates as a filesystem DataError via the caller.
func (c *FileStatCache) GetMtime(path string) (int64, error) {
	c.mu.Lock()
	if el, ok := c.entries[path]; ok {
		entry := el.Value.(*fileStatEntry)
		if c.now().Sub(entry.cachedAt) < c.ttl {
			c.order.MoveToFront(el)
			mtime := entry.mtime
			c.mu.Unlock()
			return mtime, nil
		}
		c.order.Remove(el)
		delete(c.entries, path)
	}
	c.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	mtime := info.ModTime().Unix()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(path, mtime)
	return mtime, nil
}

func (c *FileStatCache) insertLocked(path string, mtime int64) {
	if el, ok := c.entries[path]; ok {
		el.Value.(*fileStatEntry).mtime = mtime
		el.Value.(*fileStatEntry).cachedAt = c.now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&fileStatEntry{path: path, mtime: mtime, cachedAt: c.now()})
	c.entries[path] = el

	for len(c.entries) > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(*fileStatEntry).path)
	}
}
