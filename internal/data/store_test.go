package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"backtester/types"
)

func writeDayFile(t *testing.T, root, venue string, mode types.TradingMode, symbol types.Symbol, tf types.Timeframe, dateMillis int64, rows string) string {
	t.Helper()
	modeDir := "spot"
	if mode == types.Futures {
		modeDir = "futures"
	}
	date := time.UnixMilli(dateMillis).UTC().Format("2006-01-02")
	dir := filepath.Join(root, venue, modeDir, string(symbol), string(tf))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv", symbol, tf, date))
	content := "timestamp,open,high,low,close,volume\n" + rows
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type recordingObserver struct {
	mu     sync.Mutex
	events []CacheEvent
}

func (r *recordingObserver) OnCacheEvent(e CacheEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) eventTypes() []CacheEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CacheEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestLoadDayCacheHitMiss(t *testing.T) {
	root := t.TempDir()
	const day = 0
	writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, day, "0,10,11,9,10,100\n")

	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot})
	obs := &recordingObserver{}
	store.Subscribe(obs)

	if _, err := store.LoadDay("BTCUSDT", types.OneHour, day); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadDay("BTCUSDT", types.OneHour, day); err != nil {
		t.Fatal(err)
	}

	events := obs.eventTypes()
	if len(events) != 2 || events[0] != EventMiss || events[1] != EventHit {
		t.Errorf("events = %v, want [miss hit]", events)
	}

	hits, misses, _, entries := store.CacheStatistics()
	if hits != 1 || misses != 1 || entries != 1 {
		t.Errorf("stats = hits:%d misses:%d entries:%d, want 1/1/1", hits, misses, entries)
	}
}

func TestLoadDayMtimeChangeInvalidatesCache(t *testing.T) {
	root := t.TempDir()
	const day = 0
	path := writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, day, "0,10,11,9,10,100\n")

	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot})

	bars, err := store.LoadDay("BTCUSDT", types.OneHour, day)
	if err != nil || len(bars) != 1 {
		t.Fatalf("initial load: bars=%v err=%v", bars, err)
	}

	// Rewrite with new content and a distinctly newer mtime.
	if err := os.WriteFile(path, []byte("timestamp,open,high,low,close,volume\n0,10,11,9,10,100\n3600000,11,12,10,11,200\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	newer := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, newer, newer); err != nil {
		t.Fatal(err)
	}

	bars, err = store.LoadDay("BTCUSDT", types.OneHour, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Errorf("after mtime change, got %d bars, want 2 (stale cache served)", len(bars))
	}
}

func TestLoadWindowSpansDaysAndSorts(t *testing.T) {
	root := t.TempDir()
	writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, 0, "1000,10,11,9,10,1\n")
	writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, dayMillis, fmt.Sprintf("%d,11,12,10,11,1\n", dayMillis+1000))

	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot})
	window, err := store.LoadWindow("BTCUSDT", types.OneHour, 0, dayMillis+86_400_000-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(window.Bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(window.Bars))
	}
	if window.Bars[0].Timestamp > window.Bars[1].Timestamp {
		t.Error("bars not in ascending timestamp order")
	}
}

func TestLoadWindowMissingDayTolerated(t *testing.T) {
	root := t.TempDir()
	writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, 0, "1000,10,11,9,10,1\n")
	// Day 1 has no file at all.

	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot})
	window, err := store.LoadWindow("BTCUSDT", types.OneHour, 0, dayMillis+86_400_000-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(window.Bars) != 1 {
		t.Errorf("got %d bars, want 1 (missing day tolerated)", len(window.Bars))
	}
}

func TestLoadWindowStructuralErrorFailsWholeWindow(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "binance", "spot", "BTCUSDT", "1h")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	date := time.UnixMilli(0).UTC().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("BTCUSDT_1h_%s.csv", date))
	if err := os.WriteFile(path, []byte("bad,header,here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot})
	_, err := store.LoadWindow("BTCUSDT", types.OneHour, 0, 1000)
	if err == nil {
		t.Fatal("expected a structural error to fail the whole window")
	}
}

func TestInsertCacheEvictsUnderMemoryPressure(t *testing.T) {
	root := t.TempDir()
	for i := int64(0); i < 3; i++ {
		rows := fmt.Sprintf("%d,10,11,9,10,1\n", i*1000)
		writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, i*dayMillis, rows)
	}

	// Ceiling sized to hold only one bar's worth of cache entries.
	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot, MemoryCeilingBytes: EstimateBarsCost(1) + 1})
	obs := &recordingObserver{}
	store.Subscribe(obs)

	for i := int64(0); i < 3; i++ {
		if _, err := store.LoadDay("BTCUSDT", types.OneHour, i*dayMillis); err != nil {
			t.Fatal(err)
		}
	}

	_, _, evictions, entries := store.CacheStatistics()
	if evictions == 0 {
		t.Error("expected at least one eviction under memory pressure")
	}
	if entries > 1 {
		t.Errorf("entries = %d, want at most 1 under a one-entry ceiling", entries)
	}
}

func TestBatchDefersNotifications(t *testing.T) {
	root := t.TempDir()
	writeDayFile(t, root, "binance", types.Spot, "BTCUSDT", types.OneHour, 0, "0,10,11,9,10,1\n")

	store := NewOhlcvStore(StoreConfig{DataRoot: root, Venue: "binance", Mode: types.Spot})
	obs := &recordingObserver{}
	store.Subscribe(obs)

	var duringBatch int
	store.Batch(func() {
		_, _ = store.LoadDay("BTCUSDT", types.OneHour, 0)
		_, _ = store.LoadDay("BTCUSDT", types.OneHour, 0)
		duringBatch = len(obs.eventTypes())
	})

	if duringBatch != 0 {
		t.Errorf("events dispatched during batch = %d, want 0 (deferred)", duringBatch)
	}
	if len(obs.eventTypes()) == 0 {
		t.Error("expected events to flush once the batch completed")
	}
}
