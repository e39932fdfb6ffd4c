package data

import "sync"

// MemoryTracker estimates cumulative in-cache byte usage and enforces a
// configurable ceiling. Sizes are approximate; absolute precision is
// unnecessary.
type MemoryTracker struct {
	mu      sync.Mutex
	ceiling int64
	used    int64
}

// NewMemoryTracker builds a tracker enforcing the given byte ceiling.
func NewMemoryTracker(ceilingBytes int64) *MemoryTracker {
	return &MemoryTracker{ceiling: ceilingBytes}
}

// WouldExceed reports whether adding additionalBytes would push usage
// past the ceiling.
func (m *MemoryTracker) WouldExceed(additionalBytes int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used+additionalBytes > m.ceiling
}

// RecordInsert adds bytes to the tracked usage.
func (m *MemoryTracker) RecordInsert(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used += bytes
}

// RecordEvict subtracts bytes from the tracked usage, floored at zero.
func (m *MemoryTracker) RecordEvict(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= bytes
	if m.used < 0 {
		m.used = 0
	}
}

// Usage returns the current tracked byte usage.
func (m *MemoryTracker) Usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// UsagePercent returns usage as a percentage of the ceiling, used in the
// OverCapacity event payload.
func (m *MemoryTracker) UsagePercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ceiling <= 0 {
		return 0
	}
	return float64(m.used) / float64(m.ceiling) * 100
}

// EstimateBarsCost estimates the byte cost of a per-day frame of n bars.
// Each OhlcvBar is 6 float64/int64 fields (48 bytes) plus a flat
// per-frame overhead for the backing slice header.
func EstimateBarsCost(n int) int64 {
	const perBar = 48
	const overhead = 64
	return int64(n)*perBar + overhead
}
