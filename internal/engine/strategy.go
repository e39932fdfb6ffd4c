package engine

import "backtester/types"

// Strategy is the user-supplied trading logic driven bar by bar by a
// BacktestDriver.
type Strategy interface {
	// Initialize is called once before the first bar, with a Context
	// already bound to the run's symbol and configuration.
	Initialize(ctx Context) error
	// OnData is called once per bar, in ascending timestamp order,
	// after any pending liquidations for that bar have been processed.
	OnData(ctx Context, bar types.OhlcvBar) error
}

// Context is the per-bar handle a Strategy uses to inspect portfolio
// state and place orders. It is only valid for the duration of the
// Initialize/OnData call that received it.
type Context interface {
	Symbol() types.Symbol
	CurrentPrice() float64
	CurrentTime() int64

	Buy(amount, leverage float64) (types.Trade, error)
	Sell(amount, leverage float64) (types.Trade, error)
	// ClosePosition closes the given percentage (0,100] of the current
	// position, e.g. 50 closes half, 100 closes it entirely.
	ClosePosition(percentage float64) (types.Trade, error)

	PositionSize() float64
	Cash() float64
	MarginRatio() float64
	UnrealisedPnl() float64
	Leverage() float64
}

// runContext is the concrete Context bound to one BacktestDriver run. A
// single instance is reused across bars, its bar-scoped fields updated
// in place before each Strategy callback.
type runContext struct {
	symbol   types.Symbol
	price    float64
	time     int64
	leverage float64

	order   *OrderEngine
	metrics *PortfolioMetrics
	core    *PortfolioCore
}

func (c *runContext) Symbol() types.Symbol  { return c.symbol }
func (c *runContext) CurrentPrice() float64 { return c.price }
func (c *runContext) CurrentTime() int64    { return c.time }

func (c *runContext) Buy(amount, leverage float64) (types.Trade, error) {
	return c.order.Buy(c.symbol, amount, c.price, leverage, c.time)
}

func (c *runContext) Sell(amount, leverage float64) (types.Trade, error) {
	return c.order.Sell(c.symbol, amount, c.price, leverage, c.time)
}

func (c *runContext) ClosePosition(percentage float64) (types.Trade, error) {
	return c.order.ClosePosition(c.symbol, percentage, c.price, c.time)
}

func (c *runContext) PositionSize() float64 {
	if pos, ok := c.core.Positions()[c.symbol]; ok {
		return pos.Size
	}
	return 0
}

func (c *runContext) Cash() float64 { return c.core.Cash() }

func (c *runContext) MarginRatio() float64 {
	return c.metrics.MarginRatio(map[types.Symbol]float64{c.symbol: c.price})
}

func (c *runContext) UnrealisedPnl() float64 {
	return c.metrics.UnrealisedPnl(map[types.Symbol]float64{c.symbol: c.price})
}

func (c *runContext) Leverage() float64 {
	if pos, ok := c.core.Positions()[c.symbol]; ok {
		return pos.Leverage
	}
	return 0
}
