package engine

import "backtester/types"

// RiskEngine scans open positions for liquidation risk and force-closes
// them at the triggering mark price. It shares the PortfolioCore with
// OrderEngine, so a liquidation is just a forced reduce-to-zero recorded
// with ActionLiquidation.
type RiskEngine struct {
	core                  *PortfolioCore
	maintenanceMarginRate float64
	feeRate               float64
}

// NewRiskEngine builds a RiskEngine checking positions against
// maintenanceMarginRate and charging feeRate on forced closes.
func NewRiskEngine(core *PortfolioCore, maintenanceMarginRate, feeRate float64) *RiskEngine {
	return &RiskEngine{core: core, maintenanceMarginRate: maintenanceMarginRate, feeRate: feeRate}
}

// ScanLiquidations evaluates every open position against currentPrices
// (as of timestamp) and liquidates any that breach the maintenance
// margin threshold, returning the symbols liquidated in their
// portfolio insertion order. Symbols absent from currentPrices are
// skipped (no mark available).
func (r *RiskEngine) ScanLiquidations(currentPrices map[types.Symbol]float64, timestamp int64) ([]types.Symbol, error) {
	var liquidated []types.Symbol
	for _, pos := range r.core.OrderedPositions() {
		price, ok := currentPrices[pos.Symbol]
		if !ok {
			continue
		}
		if !pos.IsLiquidationRisk(price, r.maintenanceMarginRate) {
			continue
		}
		if _, err := r.CloseAtPrice(pos.Symbol, price, timestamp); err != nil {
			return liquidated, err
		}
		liquidated = append(liquidated, pos.Symbol)
	}
	return liquidated, nil
}

// CloseAtPrice force-closes the entire position in symbol at price,
// recording the trade with ActionLiquidation, and returns the realised
// pnl. timestamp is the bar timestamp driving the liquidation check.
func (r *RiskEngine) CloseAtPrice(symbol types.Symbol, price float64, timestamp int64) (float64, error) {
	var realised float64
	err := r.core.mutate(func() error {
		pos, ok := r.core.positions[symbol]
		if !ok {
			return &types.PositionNotFoundError{Symbol: symbol}
		}
		action := types.ActionLiquidation
		oe := &OrderEngine{core: r.core, feeRate: r.feeRate}
		trade, err := oe.reduce(pos, absSize(pos.Size), price, timestamp, action)
		if err != nil {
			return err
		}
		realised = trade.Pnl
		return nil
	})
	return realised, err
}

func absSize(size float64) float64 {
	if size < 0 {
		return -size
	}
	return size
}
