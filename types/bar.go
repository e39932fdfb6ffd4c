package types

import (
	"fmt"
	"sort"
)

// OhlcvBar is a single OHLCV sample. Timestamp is milliseconds since the
// Unix epoch, UTC.
type OhlcvBar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the structural invariants of a bar: finite, non-negative
// volume, positive prices, and low <= open,close <= high.
func (b OhlcvBar) Validate() error {
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "volume": b.Volume} {
		if isNonFinite(v) {
			return fmt.Errorf("%s is not finite: %v", name, v)
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("prices must be positive: open=%v high=%v low=%v close=%v", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("volume must be non-negative, got %v", b.Volume)
	}
	if b.Low > b.High {
		return fmt.Errorf("low %v greater than high %v", b.Low, b.High)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("open %v outside [low,high] = [%v,%v]", b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("close %v outside [low,high] = [%v,%v]", b.Close, b.Low, b.High)
	}
	return nil
}

func isNonFinite(v float64) bool {
	return v != v || v > 1e308 || v < -1e308
}

// OhlcvWindow is an ordered sequence of bars for one symbol/timeframe over
// [Start, End], strictly increasing in Timestamp after loading.
type OhlcvWindow struct {
	Symbol    Symbol
	Timeframe Timeframe
	Start     int64
	End       int64
	Bars      []OhlcvBar
}

// SortAndDedup sorts bars by ascending timestamp and removes duplicate
// timestamps, keeping the last occurrence.
func SortAndDedup(bars []OhlcvBar) []OhlcvBar {
	if len(bars) == 0 {
		return bars
	}
	// Stable sort so that, among equal timestamps, the later-appended
	// (later-loaded) bar ends up last -- which the depup pass below then
	// keeps, implementing last-wins.
	sorted := make([]OhlcvBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	out := make([]OhlcvBar, 0, len(sorted))
	for i, bar := range sorted {
		if i > 0 && bar.Timestamp == sorted[i-1].Timestamp {
			out[len(out)-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}
