package types

// BacktestConfig is the run configuration, validated at construction.
type BacktestConfig struct {
	Symbol                 Symbol
	Timeframe              Timeframe
	StartDate              int64
	EndDate                int64
	InitialCapital         float64
	TradingMode            TradingMode
	MaxLeverage            float64
	MaintenanceMarginRate  float64
	TakerFeeRate           float64
}

// NewBacktestConfig validates and returns a BacktestConfig, or a
// ValidationError describing the first invalid field found.
func NewBacktestConfig(
	symbol Symbol,
	timeframe Timeframe,
	startDate, endDate int64,
	initialCapital float64,
	mode TradingMode,
	maxLeverage float64,
	maintenanceMarginRate float64,
	takerFeeRate float64,
) (BacktestConfig, error) {
	cfg := BacktestConfig{
		Symbol:                symbol,
		Timeframe:             timeframe,
		StartDate:             startDate,
		EndDate:               endDate,
		InitialCapital:        initialCapital,
		TradingMode:           mode,
		MaxLeverage:           maxLeverage,
		MaintenanceMarginRate: maintenanceMarginRate,
		TakerFeeRate:          takerFeeRate,
	}
	if err := cfg.Validate(); err != nil {
		return BacktestConfig{}, err
	}
	return cfg, nil
}

// Validate re-checks all invariants; exported so config loaders (YAML/env)
// can validate after unmarshalling into a zero-value BacktestConfig.
func (c BacktestConfig) Validate() error {
	if c.Symbol == "" {
		return NewValidationError("symbol must not be empty")
	}
	if _, ok := TimeframeDuration[c.Timeframe]; !ok {
		return NewValidationError("unsupported timeframe %q", c.Timeframe)
	}
	if c.StartDate > c.EndDate {
		return NewValidationError("start_date %d after end_date %d", c.StartDate, c.EndDate)
	}
	if c.InitialCapital <= 0 {
		return NewValidationError("initial_capital must be positive, got %v", c.InitialCapital)
	}
	switch c.TradingMode {
	case Spot:
		if c.MaxLeverage != 1 {
			return NewValidationError("spot mode requires max_leverage == 1, got %v", c.MaxLeverage)
		}
	case Futures:
		if c.MaxLeverage < 1 || c.MaxLeverage > MaxLeverageFutures {
			return NewValidationError("futures max_leverage must be in [1,%v], got %v", MaxLeverageFutures, c.MaxLeverage)
		}
	default:
		return NewValidationError("unknown trading mode %q", c.TradingMode)
	}
	if c.MaintenanceMarginRate <= 0 || c.MaintenanceMarginRate >= 1 {
		return NewValidationError("maintenance_margin_rate must be in (0,1), got %v", c.MaintenanceMarginRate)
	}
	if c.TakerFeeRate < 0 {
		return NewValidationError("taker_fee_rate must be non-negative, got %v", c.TakerFeeRate)
	}
	return nil
}

// ApplyDefaults fills in zero-valued fields with their documented
// defaults, for configs built from partial input (e.g. YAML that omits
// a field).
func (c *BacktestConfig) ApplyDefaults() {
	if c.MaintenanceMarginRate == 0 {
		c.MaintenanceMarginRate = DefaultMaintenanceMarginRate
	}
	if c.TakerFeeRate == 0 {
		c.TakerFeeRate = DefaultTakerFeeRate
	}
	if c.MaxLeverage == 0 {
		c.MaxLeverage = MaxLeverageSpot
	}
}
