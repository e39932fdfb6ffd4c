package engine

import (
	"math"

	"backtester/types"
)

// Metrics is the set of post-run performance statistics computed from a
// finished backtest's history and trade log
type Metrics struct {
	TotalReturn  float64
	Volatility   float64
	SharpeRatio  float64
	SortinoRatio float64
	MaxDrawdown  float64

	TotalTrades   int
	WinRate       float64
	ProfitFactor  float64
	AvgWin        float64
	AvgLoss       float64
	Liquidations  int
	AvgLeverage   float64
	MaxLeverage   float64
}

// MetricsCalculator derives Metrics from a BacktestResult. Every ratio
// with a possible zero divisor has a documented sentinel: SharpeRatio
// is 0 when volatility is 0 and SortinoRatio is 0 when downside
// deviation is 0 (no variation to reward or penalize); ProfitFactor is +Inf when there are wins and no losses,
// and 0 when there are neither; WinRate is 0 on no trades.
type MetricsCalculator struct{}

// barsPerYear returns the approximate number of bars in a trading year at
// the given timeframe, used to annualize Sharpe/Sortino. 365 trading days
// a year, since crypto markets never close.
func barsPerYear(tf types.Timeframe) float64 {
	duration, ok := types.TimeframeDuration[tf]
	if !ok || duration <= 0 {
		return 0
	}
	const yearMillis = 365 * 86_400_000
	return float64(yearMillis) / float64(duration)
}

// Calculate computes Metrics from history (ascending by timestamp) and
// the trade log, annualizing Sharpe/Sortino using tf's bar granularity.
func (MetricsCalculator) Calculate(history []types.Snapshot, trades []types.Trade, tf types.Timeframe) Metrics {
	var m Metrics
	if len(history) == 0 {
		return m
	}

	first := history[0].PortfolioValue
	last := history[len(history)-1].PortfolioValue
	if first != 0 {
		m.TotalReturn = (last - first) / first
	}

	returns := periodReturns(history)
	m.Volatility = stddev(returns)
	meanReturn := mean(returns)
	annualization := math.Sqrt(barsPerYear(tf))

	if m.Volatility > types.AggregateTolerance {
		m.SharpeRatio = (meanReturn / m.Volatility) * annualization
	}
	downside := downsideDeviation(returns)
	if downside > types.AggregateTolerance {
		m.SortinoRatio = (meanReturn / downside) * annualization
	}

	m.MaxDrawdown = maxDrawdown(history)

	m.TotalTrades = len(trades)
	var wins, losses int
	var winSum, lossSum, grossProfit, grossLoss float64
	var leverageSum, maxLeverage float64
	var liquidations int
	for _, t := range trades {
		if t.Pnl > 0 {
			wins++
			winSum += t.Pnl
			grossProfit += t.Pnl
		} else if t.Pnl < 0 {
			losses++
			lossSum += -t.Pnl
			grossLoss += -t.Pnl
		}
		leverageSum += t.Leverage
		if t.Leverage > maxLeverage {
			maxLeverage = t.Leverage
		}
		if t.Action == types.ActionLiquidation {
			liquidations++
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(wins) / float64(m.TotalTrades)
		m.AvgLeverage = leverageSum / float64(m.TotalTrades)
	}
	if wins > 0 {
		m.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = lossSum / float64(losses)
	}
	switch {
	case grossLoss > types.AggregateTolerance:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > types.AggregateTolerance:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}
	m.Liquidations = liquidations
	m.MaxLeverage = maxLeverage

	return m
}

func periodReturns(history []types.Snapshot) []float64 {
	if len(history) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].PortfolioValue
		if prev == 0 {
			continue
		}
		returns = append(returns, (history[i].PortfolioValue-prev)/prev)
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func downsideDeviation(xs []float64) float64 {
	var negatives []float64
	for _, x := range xs {
		if x < 0 {
			negatives = append(negatives, x)
		}
	}
	if len(negatives) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range negatives {
		sumSq += x * x
	}
	return math.Sqrt(sumSq / float64(len(negatives)))
}

func maxDrawdown(history []types.Snapshot) float64 {
	peak := history[0].PortfolioValue
	var worst float64
	for _, s := range history {
		if s.PortfolioValue > peak {
			peak = s.PortfolioValue
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - s.PortfolioValue) / peak
		if drawdown > worst {
			worst = drawdown
		}
	}
	return worst
}
