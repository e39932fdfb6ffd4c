package engine

import (
	"math"

	"backtester/types"
)

// OrderEngine translates buy/sell/close_position calls into PortfolioCore
// mutations: validation, VWAP entry-price averaging, short-close-then-
// open-residual handling, and fee collection from cash.
type OrderEngine struct {
	core        *PortfolioCore
	feeRate     float64
	maxLeverage float64
}

// NewOrderEngine builds an OrderEngine operating on core, charging
// feeRate (a fraction, e.g. 0.001 for 10bps) on every fill notional and
// rejecting any order whose leverage exceeds the run's configured
// maxLeverage (BacktestConfig.MaxLeverage).
func NewOrderEngine(core *PortfolioCore, feeRate, maxLeverage float64) *OrderEngine {
	return &OrderEngine{core: core, feeRate: feeRate, maxLeverage: maxLeverage}
}

// Buy opens or increases a Long exposure, or reduces/closes/flips an
// existing Short exposure, in symbol at price using leverage.
func (e *OrderEngine) Buy(symbol types.Symbol, amount, price, leverage float64, timestamp int64) (types.Trade, error) {
	return e.fill(symbol, amount, price, leverage, timestamp, types.ActionBuy)
}

// Sell opens or increases a Short exposure, or reduces/closes/flips an
// existing Long exposure, in symbol at price using leverage.
func (e *OrderEngine) Sell(symbol types.Symbol, amount, price, leverage float64, timestamp int64) (types.Trade, error) {
	return e.fill(symbol, -amount, price, leverage, timestamp, types.ActionSell)
}

// ClosePosition closes the given percentage (0,100] of the existing
// position in symbol at price. The whole operation is atomic: either it
// fully succeeds or the portfolio is left exactly as it was.
func (e *OrderEngine) ClosePosition(symbol types.Symbol, percentage, price float64, timestamp int64) (types.Trade, error) {
	if percentage <= 0 || percentage > 100+types.RatioTolerance {
		return types.Trade{}, types.NewValidationError("close percentage %v must be in (0,100]", percentage)
	}
	if err := validatePrice(price); err != nil {
		return types.Trade{}, err
	}

	var trade types.Trade
	err := e.core.mutate(func() error {
		pos, ok := e.core.positions[symbol]
		if !ok {
			return &types.PositionNotFoundError{Symbol: symbol}
		}
		closeAmount := math.Abs(pos.Size) * percentage / 100
		action := types.ActionSell
		if pos.PositionType == types.Short {
			action = types.ActionBuy
		}
		var err error
		trade, err = e.reduce(pos, closeAmount, price, timestamp, action)
		return err
	})
	return trade, err
}

// fill is the shared Buy/Sell path. signedAmount is positive for a buy,
// negative for a sell; its magnitude is the requested trade size.
func (e *OrderEngine) fill(symbol types.Symbol, signedAmount, price, leverage float64, timestamp int64, action types.Action) (types.Trade, error) {
	amount := math.Abs(signedAmount)
	if err := validateAmount(amount); err != nil {
		return types.Trade{}, err
	}
	if err := validatePrice(price); err != nil {
		return types.Trade{}, err
	}
	if err := validateLeverage(e.core.mode, leverage, e.maxLeverage); err != nil {
		return types.Trade{}, err
	}

	var trade types.Trade
	err := e.core.mutate(func() error {
		pos, hasPosition := e.core.positions[symbol]

		wantLong := signedAmount > 0
		sameDirection := hasPosition && ((pos.Size > 0) == wantLong)

		if !hasPosition || sameDirection {
			if e.core.mode == types.Spot && !wantLong {
				return types.NewValidationError("short selling is not permitted in spot mode")
			}
			var err error
			trade, err = e.open(pos, hasPosition, symbol, amount, price, leverage, timestamp, wantLong, action)
			return err
		}

		// Opposite direction: reduce, close, or close-then-flip.
		existingAbs := math.Abs(pos.Size)
		if amount <= existingAbs+types.RatioTolerance {
			var err error
			trade, err = e.reduce(pos, amount, price, timestamp, action)
			return err
		}

		if e.core.mode == types.Spot && pos.PositionType == types.Long {
			return types.NewValidationError("short selling is not permitted in spot mode")
		}

		// Close the existing side entirely, then open the residual in
		// the new direction.
		closeTrade, err := e.reduce(pos, existingAbs, price, timestamp, action)
		if err != nil {
			return err
		}
		residual := amount - existingAbs
		openTrade, err := e.open(types.Position{}, false, symbol, residual, price, leverage, timestamp, wantLong, action)
		if err != nil {
			return err
		}
		trade = types.Trade{
			ID:           openTrade.ID,
			Timestamp:    timestamp,
			Symbol:       symbol,
			Action:       action,
			Quantity:     amount,
			Price:        price,
			Leverage:     leverage,
			Fee:          closeTrade.Fee + openTrade.Fee,
			PositionType: openTrade.PositionType,
			Pnl:          closeTrade.Pnl,
			MarginUsed:   openTrade.MarginUsed,
		}
		return nil
	})
	return trade, err
}

// open books a new position or increases an existing same-direction one,
// VWAP-averaging the entry price. Callers must already hold the core
// lock (invoked only from within mutate).
func (e *OrderEngine) open(existing types.Position, hasExisting bool, symbol types.Symbol, amount, price, leverage float64, timestamp int64, wantLong bool, action types.Action) (types.Trade, error) {
	fee := amount * price * e.feeRate
	additionalMargin := marginNotional(amount, price, leverage, e.core.mode)
	required := additionalMargin + fee
	if required > e.core.cash+types.AggregateTolerance {
		return types.Trade{}, &types.InsufficientFundsError{Required: required, Available: e.core.cash}
	}

	var next types.Position
	if hasExisting {
		totalSize := math.Abs(existing.Size) + amount
		entryPrice := (math.Abs(existing.Size)*existing.EntryPrice + amount*price) / totalSize
		signedSize := totalSize
		if !wantLong {
			signedSize = -totalSize
		}
		next = types.Position{
			Symbol:       symbol,
			Size:         signedSize,
			EntryPrice:   entryPrice,
			Leverage:     leverage,
			OpenedAt:     existing.OpenedAt,
			PositionType: existing.PositionType,
			MarginUsed:   existing.MarginUsed + additionalMargin,
			Mode:         e.core.mode,
		}
	} else if wantLong {
		next = types.CreateLong(symbol, amount, price, leverage, timestamp, e.core.mode)
	} else {
		next = types.CreateShort(symbol, amount, price, leverage, timestamp, e.core.mode)
	}

	if err := e.core.setPosition(next); err != nil {
		return types.Trade{}, err
	}
	e.core.cash -= required

	trade := types.Trade{
		ID:           e.core.newTradeID(),
		Timestamp:    timestamp,
		Symbol:       symbol,
		Action:       action,
		Quantity:     amount,
		Price:        price,
		Leverage:     leverage,
		Fee:          fee,
		PositionType: next.PositionType,
		Pnl:          0,
		MarginUsed:   additionalMargin,
	}
	if err := e.core.appendTrade(trade); err != nil {
		return types.Trade{}, err
	}
	return trade, nil
}

// reduce closes closeAmount of an existing position (closeAmount must be
// <= its current size), realizing proportional pnl and freeing margin.
// Callers must already hold the core lock.
func (e *OrderEngine) reduce(pos types.Position, closeAmount, price float64, timestamp int64, action types.Action) (types.Trade, error) {
	existingAbs := math.Abs(pos.Size)
	if existingAbs <= 0 {
		return types.Trade{}, types.NewValidationError("cannot reduce a zero-size position")
	}
	fraction := closeAmount / existingAbs
	realizedPnl := pos.UnrealisedPnl(price) * fraction
	freedMargin := pos.MarginUsed * fraction
	fee := closeAmount * price * e.feeRate

	e.core.cash += freedMargin + realizedPnl - fee

	// A liquidation's realised pnl is recorded net of the closing fee
	// (spec: liquidation pnl = unrealised_pnl - fee); a regular
	// sell/close keeps the fee out of Pnl and reports it separately in
	// Trade.Fee.
	tradePnl := realizedPnl
	if action == types.ActionLiquidation {
		tradePnl -= fee
	}

	remaining := existingAbs - closeAmount
	if remaining <= types.RatioTolerance {
		e.core.removePosition(pos.Symbol)
	} else {
		signedRemaining := remaining
		if pos.Size < 0 {
			signedRemaining = -remaining
		}
		updated := pos
		updated.Size = signedRemaining
		updated.MarginUsed = pos.MarginUsed - freedMargin
		if err := e.core.setPosition(updated); err != nil {
			return types.Trade{}, err
		}
	}

	trade := types.Trade{
		ID:           e.core.newTradeID(),
		Timestamp:    timestamp,
		Symbol:       pos.Symbol,
		Action:       action,
		Quantity:     closeAmount,
		Price:        price,
		Leverage:     pos.Leverage,
		Fee:          fee,
		PositionType: pos.PositionType,
		Pnl:          tradePnl,
		MarginUsed:   freedMargin,
	}
	if err := e.core.appendTrade(trade); err != nil {
		return types.Trade{}, err
	}
	return trade, nil
}

func marginNotional(size, price, leverage float64, mode types.TradingMode) float64 {
	notional := size * price
	if mode == types.Spot {
		return notional
	}
	return notional / leverage
}

func validateAmount(amount float64) error {
	if amount < types.MinTradeSize || amount > types.MaxTradeSize {
		return types.NewValidationError("trade amount %v outside [%v,%v]", amount, types.MinTradeSize, types.MaxTradeSize)
	}
	return nil
}

func validatePrice(price float64) error {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return types.NewValidationError("price %v must be a finite positive number", price)
	}
	return nil
}

// validateLeverage checks leverage against both the trading mode's fixed
// rule (Spot pins leverage to 1) and the run's configured maxLeverage
// (BacktestConfig.MaxLeverage, itself bounded by types.MaxLeverageFutures
// at construction) — the per-order cap spec §4.6 step 1 requires, not
// just the global ceiling.
func validateLeverage(mode types.TradingMode, leverage, maxLeverage float64) error {
	if math.IsNaN(leverage) || math.IsInf(leverage, 0) {
		return types.NewValidationError("leverage %v must be finite", leverage)
	}
	switch mode {
	case types.Spot:
		if math.Abs(leverage-types.MaxLeverageSpot) > types.RatioTolerance {
			return types.NewValidationError("spot mode requires leverage == %v, got %v", types.MaxLeverageSpot, leverage)
		}
	case types.Futures:
		if leverage < 1 || leverage > types.MaxLeverageFutures {
			return types.NewValidationError("futures leverage %v outside [1,%v]", leverage, types.MaxLeverageFutures)
		}
	default:
		return types.NewValidationError("unknown trading mode %q", mode)
	}
	if leverage > maxLeverage+types.RatioTolerance {
		return types.NewValidationError("leverage %v exceeds configured max leverage %v", leverage, maxLeverage)
	}
	return nil
}
