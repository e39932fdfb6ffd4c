package data

import (
	"container/list"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"backtester/types"
)

const (
	defaultCacheCapacity = 256
	defaultMemoryCeiling = 256 * 1024 * 1024
	maxEvictionRetries   = 3
	dayMillis            = 86_400_000
)

// StoreConfig configures an OhlcvStore.
type StoreConfig struct {
	DataRoot           string
	Venue              string
	Mode               types.TradingMode
	CacheCapacity      int
	MemoryCeilingBytes int64
}

type cacheEntry struct {
	key   CacheKey
	bars  []types.OhlcvBar
	bytes int64
}

// OhlcvStore materialises contiguous OHLCV windows from per-day CSV files
// on disk, with LRU result caching, mtime-aware invalidation, and an
// observer hook for cache events. Safe for concurrent use by multiple
// backtests.
type OhlcvStore struct {
	cfg StoreConfig

	cacheMu  sync.Mutex
	lru      *list.List // front = most recently used *cacheEntry elements
	index    map[string]*list.Element
	memory   *MemoryTracker
	stats    cacheStats

	notifyMu  sync.Mutex
	observers []Observer
	pending   []CacheEvent
	batchMode bool

	statCache *FileStatCache
	group     singleflight.Group
}

type cacheStats struct {
	hits, misses, evictions, overCapacity int
}

// NewOhlcvStore builds a store rooted at cfg.DataRoot.
func NewOhlcvStore(cfg StoreConfig) *OhlcvStore {
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = defaultCacheCapacity
	}
	if cfg.MemoryCeilingBytes <= 0 {
		cfg.MemoryCeilingBytes = defaultMemoryCeiling
	}
	return &OhlcvStore{
		cfg:       cfg,
		lru:       list.New(),
		index:     make(map[string]*list.Element),
		memory:    NewMemoryTracker(cfg.MemoryCeilingBytes),
		statCache: NewFileStatCache(),
	}
}

// Subscribe registers an observer for cache events, in registration order.
func (s *OhlcvStore) Subscribe(o Observer) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.observers = append(s.observers, o)
}

// Unsubscribe removes a previously-registered observer.
func (s *OhlcvStore) Unsubscribe(o Observer) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// CacheStatistics returns hit/miss/eviction/entry counts.
func (s *OhlcvStore) CacheStatistics() (hits, misses, evictions, entries int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.stats.hits, s.stats.misses, s.stats.evictions, len(s.index)
}

// dayPath builds <data_root>/<venue>/<spot|futures>/<SYMBOL>/<TIMEFRAME>/<SYMBOL>_<TIMEFRAME>_<YYYY-MM-DD>.csv
func (s *OhlcvStore) dayPath(symbol types.Symbol, tf types.Timeframe, dateMillis int64) string {
	modeDir := "spot"
	if s.cfg.Mode == types.Futures {
		modeDir = "futures"
	}
	date := time.UnixMilli(dateMillis).UTC().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_%s.csv", symbol, tf, date)
	return filepath.Join(s.cfg.DataRoot, s.cfg.Venue, modeDir, string(symbol), string(tf), filename)
}

// LoadDay loads (from cache, or disk on miss) the bars for one UTC day.
func (s *OhlcvStore) LoadDay(symbol types.Symbol, tf types.Timeframe, dateMillis int64) ([]types.OhlcvBar, error) {
	path := s.dayPath(symbol, tf, dateMillis)

	mtime, statErr := s.statCache.GetMtime(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// No file for this day: tolerated as no data.
			return nil, nil
		}
		return nil, types.NewDataError(types.DataErrorFileSystem, path, "stat failed", statErr)
	}
	key := CacheKey{Path: path, Mtime: mtime}

	// The cache check lives inside the singleflight closure below, not
	// here, so a cold key is looked up (and its MISS event emitted)
	// exactly once per call rather than once here and once again inside
	// the closure.
	//
	// singleflight collapses concurrent identical loads (same path+mtime)
	// across goroutines sharing this store into a single disk read.
	groupKey := fmt.Sprintf("%s@%d", key.Path, key.Mtime)
	v, err, _ := s.group.Do(groupKey, func() (any, error) {
		if bars, ok := s.lookupCache(key); ok {
			return bars, nil
		}
		bars, err := parseDayFile(path)
		if err != nil {
			return nil, err
		}
		s.insertCache(key, bars)
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.OhlcvBar), nil
}

func (s *OhlcvStore) lookupCache(key CacheKey) ([]types.OhlcvBar, bool) {
	s.cacheMu.Lock()
	el, ok := s.index[cacheIndexKey(key)]
	if !ok {
		s.stats.misses++
		s.cacheMu.Unlock()
		s.queueEvent(CacheEvent{Type: EventMiss, Key: key})
		s.drain()
		return nil, false
	}
	s.lru.MoveToFront(el)
	entry := el.Value.(*cacheEntry)
	s.stats.hits++
	entries := len(s.index)
	s.cacheMu.Unlock()

	s.queueEvent(CacheEvent{Type: EventHit, Key: key, Entries: entries})
	s.drain()
	return entry.bars, true
}

// insertCache attempts to cache bars under key, evicting LRU entries
// under memory pressure with a bounded retry count. If eviction cannot
// free enough space, the entry is not cached (still returned to the
// caller) and an OverCapacity event is published.
func (s *OhlcvStore) insertCache(key CacheKey, bars []types.OhlcvBar) {
	cost := EstimateBarsCost(len(bars))

	s.cacheMu.Lock()
	var evicted []CacheKey
	retries := 0
	for s.memory.WouldExceed(cost) && retries < maxEvictionRetries {
		victim, ok := s.evictOneLocked()
		if !ok {
			break
		}
		evicted = append(evicted, victim)
		retries++
	}
	overCapacity := s.memory.WouldExceed(cost)
	if !overCapacity {
		ik := cacheIndexKey(key)
		el := s.lru.PushFront(&cacheEntry{key: key, bars: bars, bytes: cost})
		s.index[ik] = el
		s.memory.RecordInsert(cost)
	}
	s.cacheMu.Unlock()

	// Events are queued only after cacheMu is released, so the two locks
	// are never held together.
	for _, victim := range evicted {
		s.queueEvent(CacheEvent{Type: EventEvict, Key: victim})
	}
	if overCapacity {
		detail := fmt.Sprintf("cache full after eviction retries (%.1f%% of memory ceiling in use)", s.memory.UsagePercent())
		s.queueEvent(CacheEvent{Type: EventOverCapacity, Key: key, Detail: detail})
	}
	s.drain()
}

// evictOneLocked evicts the least-recently-used entry and returns its
// key. Caller must hold cacheMu. Returns false if there was nothing to
// evict.
func (s *OhlcvStore) evictOneLocked() (CacheKey, bool) {
	back := s.lru.Back()
	if back == nil {
		return CacheKey{}, false
	}
	entry := back.Value.(*cacheEntry)
	s.lru.Remove(back)
	delete(s.index, cacheIndexKey(entry.key))
	s.memory.RecordEvict(entry.bytes)
	s.stats.evictions++
	return entry.key, true
}

func cacheIndexKey(key CacheKey) string {
	return fmt.Sprintf("%s@%d", key.Path, key.Mtime)
}

// queueEvent enqueues an event under the notifications lock; it never
// dispatches directly. This separation is what lets an observer safely
// re-enter the store (e.g. query cache_statistics) without deadlock.
func (s *OhlcvStore) queueEvent(e CacheEvent) {
	s.notifyMu.Lock()
	s.pending = append(s.pending, e)
	s.notifyMu.Unlock()
}

// drain dispatches all queued events to observers, in registration
// order. An observer's panic/error does not abort dispatch to others.
// While batch mode is active, events remain queued until Batch's
// deferred drain.
func (s *OhlcvStore) drain() {
	s.notifyMu.Lock()
	if s.batchMode {
		s.notifyMu.Unlock()
		return
	}
	events := s.pending
	s.pending = nil
	observers := append([]Observer(nil), s.observers...)
	s.notifyMu.Unlock()

	for _, e := range events {
		for _, o := range observers {
			dispatchSafely(o, e)
		}
	}
}

func dispatchSafely(o Observer, e CacheEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ohlcv store: observer panicked handling %v event: %v", e.Type, r)
		}
	}()
	o.OnCacheEvent(e)
}

// LoadWindow loads the window [start,end] (millisecond-inclusive) for
// symbol/timeframe, concurrently loading the covering per-day files,
// filtering, deduplicating (last wins) and sorting.
func (s *OhlcvStore) LoadWindow(symbol types.Symbol, tf types.Timeframe, start, end int64) (types.OhlcvWindow, error) {
	if start > end {
		return types.OhlcvWindow{}, types.NewValidationError("start %d after end %d", start, end)
	}

	days := enumerateDays(start, end)
	dayBars := make([][]types.OhlcvBar, len(days))

	g := new(errgroup.Group)
	for i, d := range days {
		i, d := i, d
		g.Go(func() error {
			bars, err := s.LoadDay(symbol, tf, d)
			if err != nil {
				var de *types.DataError
				if isStructuralOrEncoding(err, &de) {
					return err
				}
				// Any other single-day failure (e.g. a transient
				// filesystem error) is tolerated: the day contributes
				// no rows rather than failing the whole window.
				return nil
			}
			dayBars[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.OhlcvWindow{}, err
	}

	var all []types.OhlcvBar
	for _, bars := range dayBars {
		all = append(all, bars...)
	}

	filtered := all[:0:0]
	for _, b := range all {
		if b.Timestamp >= start && b.Timestamp <= end {
			filtered = append(filtered, b)
		}
	}

	sorted := types.SortAndDedup(filtered)
	return types.OhlcvWindow{Symbol: symbol, Timeframe: tf, Start: start, End: end, Bars: sorted}, nil
}

func isStructuralOrEncoding(err error, target **types.DataError) bool {
	de, ok := err.(*types.DataError)
	if !ok {
		return false
	}
	*target = de
	return de.Kind == types.DataErrorStructure || de.Kind == types.DataErrorEncoding
}

func enumerateDays(start, end int64) []int64 {
	first := (start / dayMillis) * dayMillis
	last := (end / dayMillis) * dayMillis
	var days []int64
	for d := first; d <= last; d += dayMillis {
		days = append(days, d)
	}
	return days
}

// DiscoverSymbols enumerates the symbols available under the store's
// venue/mode directory.
func (s *OhlcvStore) DiscoverSymbols() ([]types.Symbol, error) {
	modeDir := "spot"
	if s.cfg.Mode == types.Futures {
		modeDir = "futures"
	}
	root := filepath.Join(s.cfg.DataRoot, s.cfg.Venue, modeDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.NewDataError(types.DataErrorFileSystem, root, "cannot list symbols", err)
	}
	var symbols []types.Symbol
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, types.Symbol(e.Name()))
		}
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols, nil
}

// DiscoverTimeframes enumerates the timeframes available for symbol.
func (s *OhlcvStore) DiscoverTimeframes(symbol types.Symbol) ([]types.Timeframe, error) {
	modeDir := "spot"
	if s.cfg.Mode == types.Futures {
		modeDir = "futures"
	}
	root := filepath.Join(s.cfg.DataRoot, s.cfg.Venue, modeDir, string(symbol))
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.NewDataError(types.DataErrorFileSystem, root, "cannot list timeframes", err)
	}
	var timeframes []types.Timeframe
	for _, e := range entries {
		if e.IsDir() {
			timeframes = append(timeframes, types.Timeframe(e.Name()))
		}
	}
	sort.Slice(timeframes, func(i, j int) bool { return timeframes[i] < timeframes[j] })
	return timeframes, nil
}

// Batch defers observer notification until fn returns, letting bulk
// operations (e.g. a whole-window load) flush once instead of per file.
func (s *OhlcvStore) Batch(fn func()) {
	s.notifyMu.Lock()
	wasBatch := s.batchMode
	s.batchMode = true
	s.notifyMu.Unlock()

	fn()

	s.notifyMu.Lock()
	s.batchMode = wasBatch
	s.notifyMu.Unlock()
	if !wasBatch {
		s.drain()
	}
}
