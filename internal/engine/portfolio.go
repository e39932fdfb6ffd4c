package engine

import (
	"sync"

	"github.com/google/uuid"

	"backtester/types"
)

// PortfolioCore is the atomic mutable state behind a single mutex: cash,
// positions, trade log, and bounded history. OrderEngine, RiskEngine and
// PortfolioMetrics each hold a non-owning reference to one PortfolioCore
// and go through its lock to read or mutate.
type PortfolioCore struct {
	mu sync.Mutex

	initialCapital float64
	cash           float64
	positions      map[types.Symbol]types.Position
	positionOrder  []types.Symbol // insertion order, for deterministic iteration
	trades         []types.Trade
	history        []types.Snapshot
	mode           types.TradingMode

	newTradeID func() string
}

// NewPortfolioCore builds a PortfolioCore with the given starting cash
// and trading mode. initialCapital never mutates after construction.
func NewPortfolioCore(initialCapital float64, mode types.TradingMode) *PortfolioCore {
	return &PortfolioCore{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[types.Symbol]types.Position),
		mode:           mode,
		newTradeID:     func() string { return uuid.NewString() },
	}
}

// InitialCapital is immutable for the lifetime of the core.
func (p *PortfolioCore) InitialCapital() float64 { return p.initialCapital }

// Mode is immutable for the lifetime of the core.
func (p *PortfolioCore) Mode() types.TradingMode { return p.mode }

// Cash returns the current cash balance.
func (p *PortfolioCore) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Positions returns a copy of the current positions, keyed by symbol.
func (p *PortfolioCore) Positions() map[types.Symbol]types.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clonePositions(p.positions)
}

// OrderedPositions returns the current positions in insertion order.
func (p *PortfolioCore) OrderedPositions() []types.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Position, 0, len(p.positionOrder))
	for _, sym := range p.positionOrder {
		if pos, ok := p.positions[sym]; ok {
			out = append(out, pos)
		}
	}
	return out
}

// Trades returns a copy of the append-only trade log.
func (p *PortfolioCore) Trades() []types.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// History returns a copy of the bounded snapshot history.
func (p *PortfolioCore) History() []types.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Snapshot, len(p.history))
	copy(out, p.history)
	return out
}

// AppendSnapshot records a per-bar Snapshot, trimming the oldest entries
// in one O(K) pass when MaxHistoryEntries is exceeded rather than
// popping the front repeatedly.
func (p *PortfolioCore) AppendSnapshot(s types.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, s)
	if len(p.history) > types.MaxHistoryEntries {
		overflow := len(p.history) - types.MaxHistoryEntries
		trimmed := make([]types.Snapshot, types.MaxHistoryEntries)
		copy(trimmed, p.history[overflow:])
		p.history = trimmed
	}
}

// mutate runs fn while holding the lock, snapshotting cash/positions/
// trades/history first. If fn returns an error, all four are rolled back
// to their pre-call values before the lock is released, so a failed
// order leaves no partial side effects.
func (p *PortfolioCore) mutate(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cashBefore := p.cash
	posBefore := clonePositions(p.positions)
	orderBefore := append([]types.Symbol(nil), p.positionOrder...)
	tradesBefore := p.trades
	historyBefore := p.history

	if err := fn(); err != nil {
		p.cash = cashBefore
		p.positions = posBefore
		p.positionOrder = orderBefore
		p.trades = tradesBefore
		p.history = historyBefore
		return err
	}
	return nil
}

// setPosition inserts or replaces a position, tracking insertion order.
// Callers must hold the lock (i.e. call only from within mutate).
func (p *PortfolioCore) setPosition(pos types.Position) error {
	if _, exists := p.positions[pos.Symbol]; !exists {
		if len(p.positions) >= types.MaxPositionsPerPortfolio {
			return types.NewValidationError("portfolio already holds the maximum of %d positions", types.MaxPositionsPerPortfolio)
		}
		p.positionOrder = append(p.positionOrder, pos.Symbol)
	}
	p.positions[pos.Symbol] = pos
	return nil
}

// removePosition deletes a position and its order-tracking entry.
// Callers must hold the lock.
func (p *PortfolioCore) removePosition(symbol types.Symbol) {
	delete(p.positions, symbol)
	for i, sym := range p.positionOrder {
		if sym == symbol {
			p.positionOrder = append(p.positionOrder[:i], p.positionOrder[i+1:]...)
			break
		}
	}
}

// appendTrade appends a Trade, validating its size is within bounds.
// Callers must hold the lock.
func (p *PortfolioCore) appendTrade(t types.Trade) error {
	abs := t.Quantity
	if abs < 0 {
		abs = -abs
	}
	if abs < types.MinTradeSize || abs > types.MaxTradeSize {
		return types.NewValidationError("trade quantity %v outside [%v,%v]", abs, types.MinTradeSize, types.MaxTradeSize)
	}
	p.trades = append(p.trades, t)
	if len(p.trades) > types.MaxTradesHistory {
		overflow := len(p.trades) - types.MaxTradesHistory
		trimmed := make([]types.Trade, types.MaxTradesHistory)
		copy(trimmed, p.trades[overflow:])
		p.trades = trimmed
	}
	return nil
}

func clonePositions(in map[types.Symbol]types.Position) map[types.Symbol]types.Position {
	out := make(map[types.Symbol]types.Position, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CheckInvariants re-validates the core's invariants: non-negative cash,
// position map keys matching their symbols, and bounded position/history
// counts. Not called on the hot path; exported so package tests can call
// it after exercising the engine.
func (p *PortfolioCore) CheckInvariants() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cash < -types.AggregateTolerance {
		return types.NewValidationError("cash invariant violated: %v < 0", p.cash)
	}
	for sym, pos := range p.positions {
		if pos.Symbol != sym {
			return types.NewValidationError("position key %v does not match position.Symbol %v", sym, pos.Symbol)
		}
	}
	if len(p.positions) > types.MaxPositionsPerPortfolio {
		return types.NewValidationError("too many positions: %d", len(p.positions))
	}
	if len(p.history) > types.MaxHistoryEntries {
		return types.NewValidationError("history exceeds bound: %d", len(p.history))
	}
	return nil
}
