package engine

import (
	"math"

	"backtester/types"
)

// PortfolioMetrics is a read-only view over a PortfolioCore computing
// point-in-time valuation figures from a set of current mark prices.
// It never mutates the core.
type PortfolioMetrics struct {
	core *PortfolioCore
}

// NewPortfolioMetrics builds a PortfolioMetrics reading from core.
func NewPortfolioMetrics(core *PortfolioCore) *PortfolioMetrics {
	return &PortfolioMetrics{core: core}
}

// PortfolioValue values the portfolio per trading mode: Spot is cash plus
// the mark-to-market value of every held position (margin equals full
// notional in Spot, so nothing is missing from cash); Futures is cash
// plus unrealised pnl only, since margin already left cash when the
// position was opened and comes back on close, not before.
func (m *PortfolioMetrics) PortfolioValue(marks map[types.Symbol]float64) float64 {
	cash := m.core.Cash()
	positions := m.core.Positions()
	value := cash
	spot := m.core.Mode() == types.Spot
	for symbol, pos := range positions {
		price, ok := marks[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		if spot {
			value += pos.PositionValue(price)
		} else {
			value += pos.UnrealisedPnl(price)
		}
	}
	return value
}

// UsedMargin sums margin_used across all open positions.
func (m *PortfolioMetrics) UsedMargin() float64 {
	positions := m.core.Positions()
	var total float64
	for _, pos := range positions {
		total += pos.MarginUsed
	}
	return total
}

// MarginRatio is equity (cash plus unrealised pnl) over used margin. When
// used margin is zero the ratio is defined as +Inf (no leverage in use,
// maximally safe).
func (m *PortfolioMetrics) MarginRatio(marks map[types.Symbol]float64) float64 {
	used := m.UsedMargin()
	if used <= 0 {
		return math.Inf(1)
	}
	equity := m.core.Cash() + m.UnrealisedPnl(marks)
	return equity / used
}

// RealisedPnl sums the pnl field across the trade log.
func (m *PortfolioMetrics) RealisedPnl() float64 {
	trades := m.core.Trades()
	var total float64
	for _, t := range trades {
		total += t.Pnl
	}
	return total
}

// UnrealisedPnl sums the mark-to-market pnl of every open position.
func (m *PortfolioMetrics) UnrealisedPnl(marks map[types.Symbol]float64) float64 {
	positions := m.core.Positions()
	var total float64
	for symbol, pos := range positions {
		price, ok := marks[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		total += pos.UnrealisedPnl(price)
	}
	return total
}

// Snapshot builds the Snapshot recorded into history after a bar.
func (m *PortfolioMetrics) Snapshot(timestamp int64, marks map[types.Symbol]float64) types.Snapshot {
	cash := m.core.Cash()
	used := m.UsedMargin()
	value := m.PortfolioValue(marks)
	leverage := 0.0
	if value > 0 {
		leverage = used / value
	}
	return types.Snapshot{
		Timestamp:      timestamp,
		PortfolioValue: value,
		Cash:           cash,
		UnrealisedPnl:  m.UnrealisedPnl(marks),
		RealisedPnl:    m.RealisedPnl(),
		MarginUsed:     used,
		PositionCount:  len(m.core.Positions()),
		LeverageRatio:  leverage,
	}
}
