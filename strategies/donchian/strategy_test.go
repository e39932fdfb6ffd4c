package donchian

import (
	"testing"

	"backtester/types"
)

// fakeContext is a minimal engine.Context stand-in that tracks a single
// position's size against a fixed price, just enough to drive the
// strategy's decisions without a real OrderEngine.
type fakeContext struct {
	symbol   types.Symbol
	price    float64
	time     int64
	cash     float64
	size     float64
	leverage float64

	buys  int
	sells int
	closes int
}

func (f *fakeContext) Symbol() types.Symbol { return f.symbol }
func (f *fakeContext) CurrentPrice() float64 { return f.price }
func (f *fakeContext) CurrentTime() int64 { return f.time }
func (f *fakeContext) Cash() float64 { return f.cash }
func (f *fakeContext) PositionSize() float64 { return f.size }
func (f *fakeContext) MarginRatio() float64 { return 0 }
func (f *fakeContext) UnrealisedPnl() float64 { return 0 }
func (f *fakeContext) Leverage() float64 { return f.leverage }

func (f *fakeContext) Buy(amount, leverage float64) (types.Trade, error) {
	f.buys++
	f.size += amount
	f.cash -= amount * f.price
	f.leverage = leverage
	return types.Trade{Quantity: amount, Price: f.price}, nil
}

func (f *fakeContext) Sell(amount, leverage float64) (types.Trade, error) {
	f.sells++
	f.size -= amount
	f.cash += amount * f.price
	f.leverage = leverage
	return types.Trade{Quantity: amount, Price: f.price}, nil
}

func (f *fakeContext) ClosePosition(percentage float64) (types.Trade, error) {
	f.closes++
	closed := f.size * percentage / 100
	f.cash += closed * f.price
	f.size -= closed
	return types.Trade{Quantity: closed, Price: f.price}, nil
}

func flatBars(n int, price float64) []types.OhlcvBar {
	bars := make([]types.OhlcvBar, n)
	for i := range bars {
		bars[i] = types.OhlcvBar{
			Timestamp: int64(i), Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10,
		}
	}
	return bars
}

func TestDonchianEntersLongOnBreakout(t *testing.T) {
	s := New(1)
	ctx := &fakeContext{symbol: "BTCUSDT", cash: 10000}
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	for _, bar := range flatBars(lookback, 100) {
		ctx.price = bar.Close
		ctx.time = bar.Timestamp
		if err := s.OnData(ctx, bar); err != nil {
			t.Fatal(err)
		}
	}
	if ctx.buys != 0 {
		t.Fatalf("no breakout yet, expected no buys, got %d", ctx.buys)
	}

	breakout := types.OhlcvBar{Timestamp: int64(lookback), Open: 100, High: 150, Low: 99, Close: 140, Volume: 10}
	ctx.price = breakout.Close
	ctx.time = breakout.Timestamp
	if err := s.OnData(ctx, breakout); err != nil {
		t.Fatal(err)
	}
	if ctx.buys != 1 {
		t.Fatalf("buys = %d, want 1 after a breakout above the channel high", ctx.buys)
	}
	if ctx.size <= 0 {
		t.Errorf("position size = %v, want > 0 after entering long", ctx.size)
	}
}

func TestDonchianSpotModeNeverShorts(t *testing.T) {
	s := New(1) // spot: leverage == 1
	ctx := &fakeContext{symbol: "BTCUSDT", cash: 10000}
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	for _, bar := range flatBars(lookback, 100) {
		ctx.price = bar.Close
		ctx.time = bar.Timestamp
		if err := s.OnData(ctx, bar); err != nil {
			t.Fatal(err)
		}
	}

	breakdown := types.OhlcvBar{Timestamp: int64(lookback), Open: 100, High: 101, Low: 50, Close: 60, Volume: 10}
	ctx.price = breakdown.Close
	ctx.time = breakdown.Timestamp
	if err := s.OnData(ctx, breakdown); err != nil {
		t.Fatal(err)
	}
	if ctx.sells != 0 {
		t.Errorf("spot mode must never sell short, got %d sells", ctx.sells)
	}
}

func TestDonchianStopLossClosesLong(t *testing.T) {
	s := New(1)
	ctx := &fakeContext{symbol: "BTCUSDT", cash: 10000}
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	for _, bar := range flatBars(lookback, 100) {
		ctx.price = bar.Close
		ctx.time = bar.Timestamp
		if err := s.OnData(ctx, bar); err != nil {
			t.Fatal(err)
		}
	}
	breakout := types.OhlcvBar{Timestamp: int64(lookback), Open: 100, High: 150, Low: 99, Close: 140, Volume: 10}
	ctx.price = breakout.Close
	ctx.time = breakout.Timestamp
	if err := s.OnData(ctx, breakout); err != nil {
		t.Fatal(err)
	}
	if s.stopLoss <= 0 {
		t.Fatal("expected a stop-loss to be set after entering long")
	}

	crash := types.OhlcvBar{Timestamp: int64(lookback + 1), Open: 140, High: 141, Low: s.stopLoss - 10, Close: s.stopLoss - 5, Volume: 10}
	ctx.price = crash.Close
	ctx.time = crash.Timestamp
	if err := s.OnData(ctx, crash); err != nil {
		t.Fatal(err)
	}
	if ctx.closes == 0 {
		t.Error("expected the stop-loss breach to close the position")
	}
}
