package engine

import (
	"fmt"

	"github.com/schollz/progressbar/v3"

	"backtester/internal/data"
	"backtester/types"
)

// BacktestResult is everything produced by one BacktestDriver.Run: the
// portfolio's snapshot history, its full trade log, the symbols
// liquidated along the way, and (if the run aborted) the error that
// stopped it. History and Trades reflect every bar processed before an
// abort, so a failed run still returns whatever it accumulated.
type BacktestResult struct {
	Config       types.BacktestConfig
	History      []types.Snapshot
	Trades       []types.Trade
	Liquidations []types.Symbol
	Err          error
}

// BacktestDriver wires a data store, a fresh PortfolioCore and its
// engines, and a Strategy into one bar-by-bar run.
type BacktestDriver struct {
	store *data.OhlcvStore
}

// NewBacktestDriver builds a driver loading market data from store.
func NewBacktestDriver(store *data.OhlcvStore) *BacktestDriver {
	return &BacktestDriver{store: store}
}

// Run loads the configured window, then feeds it bar by bar to strategy:
// liquidations are scanned and force-closed before each bar's callback,
// then the callback runs, then a Snapshot of the resulting state is
// appended to history. Bars are visited in ascending timestamp order.
func (d *BacktestDriver) Run(cfg types.BacktestConfig, strategy Strategy) (BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return BacktestResult{Config: cfg}, err
	}

	window, err := d.store.LoadWindow(cfg.Symbol, cfg.Timeframe, cfg.StartDate, cfg.EndDate)
	if err != nil {
		return BacktestResult{Config: cfg}, fmt.Errorf("loading window: %w", err)
	}

	core := NewPortfolioCore(cfg.InitialCapital, cfg.TradingMode)
	order := NewOrderEngine(core, cfg.TakerFeeRate, cfg.MaxLeverage)
	risk := NewRiskEngine(core, cfg.MaintenanceMarginRate, cfg.TakerFeeRate)
	metrics := NewPortfolioMetrics(core)

	ctx := &runContext{symbol: cfg.Symbol, order: order, metrics: metrics, core: core}

	result := BacktestResult{Config: cfg}

	if err := strategy.Initialize(ctx); err != nil {
		result.Err = fmt.Errorf("strategy initialize: %w", err)
		return result, result.Err
	}

	bar := progressbar.Default(int64(len(window.Bars)), fmt.Sprintf("backtesting %s %s", cfg.Symbol, cfg.Timeframe))

	for i, b := range window.Bars {
		marks := map[types.Symbol]float64{cfg.Symbol: b.Close}

		liquidated, err := risk.ScanLiquidations(marks, b.Timestamp)
		if err != nil {
			result.Err = fmt.Errorf("liquidation scan at bar %d: %w", i, err)
			break
		}
		result.Liquidations = append(result.Liquidations, liquidated...)

		ctx.price = b.Close
		ctx.time = b.Timestamp

		if err := strategy.OnData(ctx, b); err != nil {
			result.Err = &types.StrategyError{Bar: i, Err: err}
			break
		}

		core.AppendSnapshot(metrics.Snapshot(b.Timestamp, marks))
		_ = bar.Add(1)
	}
	_ = bar.Close()

	result.History = core.History()
	result.Trades = core.Trades()
	return result, result.Err
}
