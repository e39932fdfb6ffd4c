package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStatCacheGetMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "day.csv")
	if err := os.WriteFile(path, []byte("timestamp,open,high,low,close,volume\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewFileStatCache()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	mtime1, err := c.GetMtime(path)
	if err != nil {
		t.Fatal(err)
	}

	// Within the TTL, a second call must return the cached value without
	// re-stat'ing (simulated by advancing the clock but not touching disk).
	clock = clock.Add(fileStatTTL / 2)
	mtime2, err := c.GetMtime(path)
	if err != nil {
		t.Fatal(err)
	}
	if mtime1 != mtime2 {
		t.Errorf("mtime changed within TTL: %d != %d", mtime1, mtime2)
	}

	// Touch the file with a newer mtime, but the cache entry is still
	// fresh, so the stale value is served until the TTL expires.
	newer := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(path, newer, newer); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(fileStatTTL) // push well past the TTL
	mtime3, err := c.GetMtime(path)
	if err != nil {
		t.Fatal(err)
	}
	if mtime3 == mtime1 {
		t.Error("expected a fresh stat to observe the updated mtime after TTL expiry")
	}
}

func TestFileStatCacheCapacityEviction(t *testing.T) {
	dir := t.TempDir()
	c := NewFileStatCache()
	c.capacity = 2

	paths := make([]string, 3)
	for i := range paths {
		p := filepath.Join(dir, string(rune('a'+i))+".csv")
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths[i] = p
		if _, err := c.GetMtime(p); err != nil {
			t.Fatal(err)
		}
	}

	if len(c.entries) != 2 {
		t.Errorf("entries = %d, want capacity-bounded 2", len(c.entries))
	}
	if _, ok := c.entries[paths[0]]; ok {
		t.Error("least-recently-used entry should have been evicted")
	}
}
