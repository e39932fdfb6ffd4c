// Package donchian implements a classic 20-period Donchian channel
// breakout: go long on a break of the highest high of the preceding
// lookback bars, go short (futures mode only) on a break of the lowest
// low, sized as a fixed fraction of available cash.
package donchian

import (
	"math"

	"backtester/internal/engine"
	"backtester/types"
)

const (
	lookback     = 20 // completed bars forming the channel
	atrPeriod    = 20
	riskFraction = 0.1 // fraction of cash committed per entry
)

// Strategy is a Donchian channel breakout, adapted to the engine.Strategy
// contract: it keeps its own rolling bar history per run (one symbol per
// run, per BacktestDriver) rather than relying on the driver to do so.
type Strategy struct {
	leverage float64

	history  []types.OhlcvBar
	stopLoss float64
}

// New builds a Donchian breakout strategy trading at the given leverage
// (1 for spot, >1 for futures).
func New(leverage float64) *Strategy {
	return &Strategy{leverage: leverage}
}

func (s *Strategy) Initialize(ctx engine.Context) error {
	s.history = nil
	s.stopLoss = 0
	return nil
}

func (s *Strategy) OnData(ctx engine.Context, bar types.OhlcvBar) error {
	s.history = append(s.history, bar)

	// Need lookback completed bars plus the current one for a breakout.
	if len(s.history) < lookback+1 {
		return nil
	}

	completed := s.history[len(s.history)-lookback-1 : len(s.history)-1]
	highestHigh, lowestLow := donchianHighLow(completed)

	switch {
	case bar.High > highestHigh:
		if err := s.enterLong(ctx, bar); err != nil {
			return err
		}
	case bar.Low < lowestLow:
		if err := s.enterShort(ctx, bar); err != nil {
			return err
		}
	case s.stopLoss > 0 && ctx.PositionSize() > 0 && bar.Close < s.stopLoss:
		if _, err := ctx.ClosePosition(100); err != nil {
			return err
		}
		s.stopLoss = 0
	}
	return nil
}

func (s *Strategy) enterLong(ctx engine.Context, bar types.OhlcvBar) error {
	if ctx.PositionSize() < 0 {
		if _, err := ctx.ClosePosition(100); err != nil {
			return err
		}
	}
	amount := (ctx.Cash() * riskFraction) / bar.Close
	if amount <= 0 {
		return nil
	}
	if _, err := ctx.Buy(amount, s.leverage); err != nil {
		return err
	}
	atr := calcATR(s.history, atrPeriod)
	s.stopLoss = bar.Close - 2*atr
	return nil
}

func (s *Strategy) enterShort(ctx engine.Context, bar types.OhlcvBar) error {
	if ctx.PositionSize() > 0 {
		if _, err := ctx.ClosePosition(100); err != nil {
			return err
		}
	}
	if s.leverage <= 1 {
		// Spot mode forbids short selling; a breakout to the downside
		// with no existing long is simply not actionable.
		return nil
	}
	amount := (ctx.Cash() * riskFraction) / bar.Close
	if amount <= 0 {
		return nil
	}
	if _, err := ctx.Sell(amount, s.leverage); err != nil {
		return err
	}
	s.stopLoss = 0
	return nil
}

func donchianHighLow(bars []types.OhlcvBar) (float64, float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	highest := bars[0].High
	lowest := bars[0].Low
	for _, b := range bars {
		if b.High > highest {
			highest = b.High
		}
		if b.Low < lowest {
			lowest = b.Low
		}
	}
	return highest, lowest
}

func calcATR(bars []types.OhlcvBar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	trueRanges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high, low, prevClose := bars[i].High, bars[i].Low, bars[i-1].Close
		r1 := high - low
		r2 := math.Abs(high - prevClose)
		r3 := math.Abs(low - prevClose)
		trueRanges = append(trueRanges, math.Max(r1, math.Max(r2, r3)))
	}

	var atr float64
	for _, tr := range trueRanges[:period] {
		atr += tr
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr
}
