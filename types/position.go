package types

import "math"

// Position is a single open exposure in one symbol. Size is signed:
// positive for Long, negative for Short.
type Position struct {
	Symbol       Symbol
	Size         float64
	EntryPrice   float64
	Leverage     float64
	OpenedAt     int64
	PositionType PositionType
	MarginUsed   float64
	Mode         TradingMode
}

// UnrealisedPnl computes the mark-to-market profit/loss at the given
// price.
func (p Position) UnrealisedPnl(markPrice float64) float64 {
	abs := math.Abs(p.Size)
	switch p.PositionType {
	case Long:
		return (markPrice - p.EntryPrice) * abs
	case Short:
		return (p.EntryPrice - markPrice) * abs
	default:
		return 0
	}
}

// IsLiquidationRisk reports whether the position's unrealised loss at
// markPrice breaches the maintenance margin threshold. Spot positions
// are never at liquidation risk.
func (p Position) IsLiquidationRisk(markPrice, maintenanceMarginRate float64) bool {
	if p.Mode == Spot {
		return false
	}
	threshold := -(p.MarginUsed * (1 - maintenanceMarginRate))
	return p.UnrealisedPnl(markPrice) <= threshold
}

// PositionValue is the Spot-mode valuation of the position at markPrice.
func (p Position) PositionValue(markPrice float64) float64 {
	return math.Abs(p.Size) * markPrice
}

// CreateLong builds a new Long position, computing margin per mode.
func CreateLong(symbol Symbol, size, entryPrice, leverage float64, openedAt int64, mode TradingMode) Position {
	size = math.Abs(size)
	return Position{
		Symbol:       symbol,
		Size:         size,
		EntryPrice:   entryPrice,
		Leverage:     leverage,
		OpenedAt:     openedAt,
		PositionType: Long,
		MarginUsed:   marginUsed(size, entryPrice, leverage, mode),
		Mode:         mode,
	}
}

// CreateShort builds a new Short position. Short positions are illegal
// in Spot mode; callers must validate mode before calling this (the
// OrderEngine does so and returns a ValidationError instead).
func CreateShort(symbol Symbol, size, entryPrice, leverage float64, openedAt int64, mode TradingMode) Position {
	size = math.Abs(size)
	return Position{
		Symbol:       symbol,
		Size:         -size,
		EntryPrice:   entryPrice,
		Leverage:     leverage,
		OpenedAt:     openedAt,
		PositionType: Short,
		MarginUsed:   marginUsed(size, entryPrice, leverage, mode),
		Mode:         mode,
	}
}

// CreateFromTrade builds a position directly from a recorded Trade.
func CreateFromTrade(t Trade, mode TradingMode) Position {
	if t.Action == ActionSell {
		return CreateShort(t.Symbol, t.Quantity, t.Price, t.Leverage, t.Timestamp, mode)
	}
	return CreateLong(t.Symbol, t.Quantity, t.Price, t.Leverage, t.Timestamp, mode)
}

func marginUsed(size, price, leverage float64, mode TradingMode) float64 {
	notional := size * price
	if mode == Spot {
		return notional
	}
	return notional / leverage
}
