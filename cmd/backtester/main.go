package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"backtester/internal/config"
	"backtester/internal/data"
	"backtester/internal/engine"
	"backtester/strategies/donchian"
	"backtester/types"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		symbol     = flag.String("symbol", "BTCUSDT", "market symbol")
		timeframe  = flag.String("timeframe", "1h", "bar timeframe")
		start      = flag.String("start", "", "window start, YYYY-MM-DD (UTC)")
		end        = flag.String("end", "", "window end, YYYY-MM-DD (UTC)")
		capital    = flag.Float64("capital", 10000, "initial capital")
		mode       = flag.String("mode", "spot", "trading mode: spot|futures")
		leverage   = flag.Float64("leverage", 1, "leverage (futures only)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	startMs, endMs, err := parseWindow(*start, *end)
	if err != nil {
		log.Fatal(err)
	}

	tradingMode := types.Spot
	if *mode == "futures" {
		tradingMode = types.Futures
	}

	runConfig, err := types.NewBacktestConfig(
		types.Symbol(*symbol),
		types.Timeframe(*timeframe),
		startMs, endMs,
		*capital,
		tradingMode,
		*leverage,
		cfg.Fees.MaintenanceMarginRate,
		cfg.Fees.TakerFeeRate,
	)
	if err != nil {
		log.Fatal(err)
	}

	store := data.NewOhlcvStore(data.StoreConfig{
		DataRoot:           cfg.Data.Root,
		Venue:              cfg.Data.Venue,
		Mode:               tradingMode,
		CacheCapacity:      cfg.Data.CacheCapacity,
		MemoryCeilingBytes: cfg.Data.MemoryCeilingBytes,
	})
	store.Subscribe(data.ObserverFunc(func(e data.CacheEvent) {
		if e.Type == data.EventOverCapacity || e.Type == data.EventEvict {
			log.Printf("ohlcv store: %s %s", e.Type, e.Key.Path)
		}
	}))

	driver := engine.NewBacktestDriver(store)
	strategy := donchian.New(*leverage)

	result, err := driver.Run(runConfig, strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest aborted: %v\n", err)
	}

	metrics := engine.MetricsCalculator{}.Calculate(result.History, result.Trades, runConfig.Timeframe)
	printSummary(runConfig, metrics, result)
}

func parseWindow(start, end string) (int64, int64, error) {
	if start == "" || end == "" {
		return 0, 0, fmt.Errorf("both -start and -end are required")
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0, 0, fmt.Errorf("bad -start: %w", err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return 0, 0, fmt.Errorf("bad -end: %w", err)
	}
	return s.UnixMilli(), e.UnixMilli(), nil
}

func printSummary(cfg types.BacktestConfig, m engine.Metrics, result engine.BacktestResult) {
	fmt.Printf("\n%s %s  %s → %s  (%s, %gx)\n",
		cfg.Symbol, cfg.Timeframe,
		time.UnixMilli(cfg.StartDate).UTC().Format("2006-01-02"),
		time.UnixMilli(cfg.EndDate).UTC().Format("2006-01-02"),
		cfg.TradingMode, cfg.MaxLeverage)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Total return", fmt.Sprintf("%.4f%%", m.TotalReturn*100))
	table.Append("Volatility", fmt.Sprintf("%.6f", m.Volatility))
	table.Append("Sharpe ratio", fmt.Sprintf("%.4f", m.SharpeRatio))
	table.Append("Sortino ratio", fmt.Sprintf("%.4f", m.SortinoRatio))
	table.Append("Max drawdown", fmt.Sprintf("%.4f%%", m.MaxDrawdown*100))
	table.Append("Total trades", fmt.Sprintf("%d", m.TotalTrades))
	table.Append("Win rate", fmt.Sprintf("%.2f%%", m.WinRate*100))
	table.Append("Profit factor", fmt.Sprintf("%.4f", m.ProfitFactor))
	table.Append("Avg win", fmt.Sprintf("%.4f", m.AvgWin))
	table.Append("Avg loss", fmt.Sprintf("%.4f", m.AvgLoss))
	table.Append("Liquidations", fmt.Sprintf("%d", m.Liquidations))
	table.Append("Avg leverage", fmt.Sprintf("%.2f", m.AvgLeverage))
	table.Append("Max leverage", fmt.Sprintf("%.2f", m.MaxLeverage))
	table.Render()

	if result.Err != nil {
		fmt.Printf("\nrun stopped early: %v\n", result.Err)
	}
}
