package data

// CacheEventType classifies a cache event published by the OhlcvStore.
type CacheEventType string

const (
	EventHit          CacheEventType = "hit"
	EventMiss         CacheEventType = "miss"
	EventEvict        CacheEventType = "evict"
	EventOverCapacity CacheEventType = "over_capacity"
)

// CacheEvent is one published cache occurrence.
type CacheEvent struct {
	Type    CacheEventType
	Key     CacheKey
	Entries int
	Detail  string
}

// CacheKey is (file path, mtime-as-seconds); any mtime change produces a
// distinct key so stale entries are never served.
type CacheKey struct {
	Path  string
	Mtime int64
}

// Observer receives cache events dispatched from the notification queue.
// Implementations must be side-effect-lean and tolerant of being invoked
// on an arbitrary goroutine.
type Observer interface {
	OnCacheEvent(event CacheEvent)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(CacheEvent)

func (f ObserverFunc) OnCacheEvent(event CacheEvent) { f(event) }
