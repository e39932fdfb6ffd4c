package types

// Portfolio and trade-size limits.
const (
	MaxPositionsPerPortfolio = 100
	MaxHistoryEntries        = 5000
	MaxTradesHistory         = 10000

	MinTradeSize = 1e-5
	MaxTradeSize = 1e6

	MaxLeverageSpot    = 1.0
	MaxLeverageFutures = 100.0

	DefaultMaintenanceMarginRate = 0.005
	DefaultTakerFeeRate          = 0.001
)

// Floating-point comparison tolerances for tolerance-based equality
// across the engine's binary floating-point arithmetic.
const (
	RatioTolerance     = 1e-9
	AggregateTolerance = 1e-6
)
