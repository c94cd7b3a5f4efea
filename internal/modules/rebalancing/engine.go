// Package rebalancing computes the trades that bring a portfolio back in line
// with a target index.
//
// The Engine is a pure computation: it takes a portfolio snapshot and an index
// snapshot, simulates trades on a private working copy and returns the
// compacted action list with the projected free cash. It performs no I/O.
package rebalancing

import (
	"fmt"
	"math"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/rs/zerolog"
)

// Engine defaults
const (
	DefaultDelta         = 0.05
	DefaultCommission    = 0.003
	DefaultMinLotsToKeep = 1
	DefaultMaxIterations = 0
)

// iterationCeiling keeps a derived bound inside int on 32-bit platforms
const iterationCeiling = math.MaxInt32

// EngineConfig holds the engine-wide tunables
type EngineConfig struct {
	// Delta is the tolerance band: a buy happens only when
	// target > current * (1 + Delta).
	Delta float64
	// Commission is the proportional fee applied to buy cost and sell proceeds.
	Commission float64
	// MinLotsToKeep is the whole-lot floor a sell never reaches.
	MinLotsToKeep int64
	// MaxIterations caps the buy/sell loop. Zero derives the cap from each
	// call's cash and lot prices, see iterationBudget.
	MaxIterations int
}

// DefaultEngineConfig returns the default tunables
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Delta:         DefaultDelta,
		Commission:    DefaultCommission,
		MinLotsToKeep: DefaultMinLotsToKeep,
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate checks the tunables
func (c EngineConfig) Validate() error {
	if c.Delta < 0 {
		return fmt.Errorf("%w: delta %.4f must not be negative", domain.ErrConfiguration, c.Delta)
	}
	if c.Commission < 0 || c.Commission >= 1 {
		return fmt.Errorf("%w: commission %.4f must be in [0, 1)", domain.ErrConfiguration, c.Commission)
	}
	if c.MinLotsToKeep < 0 {
		return fmt.Errorf("%w: min_lots_to_keep %d must not be negative", domain.ErrConfiguration, c.MinLotsToKeep)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: max_iterations %d must not be negative", domain.ErrConfiguration, c.MaxIterations)
	}
	return nil
}

// Result is the outcome of one rebalance computation
type Result struct {
	// Actions is the compacted action list, quantities in shares.
	Actions []domain.RebalanceAction
	// FreeCash is the projected free cash after all actions.
	FreeCash float64
	// Projected is the simulated post-trade portfolio.
	Projected domain.Portfolio
	// Iterations is the number of buy/sell passes that made progress.
	Iterations int
}

// Engine runs the rebalancing state machine: exclusion pass, then alternating
// buy and sell attempts until neither makes progress.
type Engine struct {
	cfg EngineConfig
	log zerolog.Logger
}

// NewEngine creates a new engine. Invalid tunables fail with ErrConfiguration.
func NewEngine(cfg EngineConfig, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("service", "rebalancing_engine").Logger(),
	}, nil
}

// Config returns the tunables the engine was built with
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// workingCopy is the engine's private simulation of post-trade state
type workingCopy struct {
	holdings []Holding
	cash     float64
	actions  []domain.RebalanceAction
}

func (w *workingCopy) find(ticker string) *Holding {
	for i := range w.holdings {
		if w.holdings[i].Ticker == ticker {
			return &w.holdings[i]
		}
	}
	return nil
}

func (w *workingCopy) remove(ticker string) {
	for i := range w.holdings {
		if w.holdings[i].Ticker == ticker {
			w.holdings = append(w.holdings[:i], w.holdings[i+1:]...)
			return
		}
	}
}

func (w *workingCopy) record(actionType domain.ActionType, ticker string, quantity, lotSize int64) {
	w.actions = append(w.actions, domain.RebalanceAction{
		Type:     actionType,
		Ticker:   ticker,
		Quantity: quantity,
		LotSize:  lotSize,
	})
}

// Calculate computes the rebalance actions for a portfolio against a target index.
// Neither argument is modified. Invalid input fails with ErrDataInconsistency
// before any simulation starts.
func (e *Engine) Calculate(portfolio domain.Portfolio, index domain.TargetIndex) (*Result, error) {
	if err := validateInputs(&portfolio, &index); err != nil {
		return nil, err
	}

	w := &workingCopy{
		holdings: HoldingsFromPositions(portfolio.Positions),
		cash:     portfolio.FreeCash.Float64(),
	}

	e.excludePass(w, index)

	limit := e.cfg.MaxIterations
	if limit == 0 {
		limit = iterationBudget(w, index)
	}

	iterations := 0
	for {
		total := TotalValue(w.holdings, w.cash)
		rows := BuildWeights(w.holdings, index.Constituents, total, e.cfg.Delta)

		if !e.tryBuy(w, rows) && !e.trySell(w, rows, total) {
			break
		}

		iterations++
		if iterations > limit {
			return nil, fmt.Errorf("rebalancing of %q against %s did not converge after %d iterations",
				portfolio.AccountID, index.Name, limit)
		}
	}

	actions := Compact(w.actions)

	e.log.Debug().
		Str("account_id", portfolio.AccountID).
		Str("index", index.Name).
		Int("raw_actions", len(w.actions)).
		Int("actions", len(actions)).
		Int("iterations", iterations).
		Float64("free_cash", w.cash).
		Msg("Rebalance calculated")

	return &Result{
		Actions:    actions,
		FreeCash:   w.cash,
		Projected:  projectPortfolio(portfolio, w),
		Iterations: iterations,
	}, nil
}

// excludePass liquidates every holding whose target weight is zero and drops
// it from the working copy before the main loop.
func (e *Engine) excludePass(w *workingCopy, index domain.TargetIndex) {
	total := TotalValue(w.holdings, w.cash)
	rows := BuildWeights(w.holdings, index.Constituents, total, e.cfg.Delta)

	for _, row := range rows {
		if row.TargetWeight != 0 || !row.Held {
			continue
		}
		h := w.find(row.Ticker)
		if h == nil {
			continue
		}
		if h.Quantity > 0 {
			proceeds := h.MarketValue()
			w.cash += proceeds - proceeds*e.cfg.Commission
			w.record(domain.ActionSell, h.Ticker, h.Quantity, h.LotSize)

			e.log.Debug().
				Str("ticker", h.Ticker).
				Int64("quantity", h.Quantity).
				Msg("Excluded from index, selling entire position")
		}
		w.remove(row.Ticker)
	}
}

// iterationBudget bounds the loop for one call. Every buy spends at least the
// cheapest lot of the index, so the buys are bounded by the total value over
// that lot. Every sell gives up at least one lot that was either held after the
// exclusion pass or bought later, so sells are bounded by the same figure.
func iterationBudget(w *workingCopy, index domain.TargetIndex) int {
	minLot := math.Inf(1)
	for _, c := range index.Constituents {
		if c.Weight <= 0 {
			continue
		}
		if v := float64(c.LotSize) * c.LastPrice; v > 0 && v < minLot {
			minLot = v
		}
	}
	for _, h := range w.holdings {
		if v := float64(h.LotSize) * h.LastPrice; v > 0 && v < minLot {
			minLot = v
		}
	}

	slack := float64(len(index.Constituents)+len(w.holdings)) + 16
	if math.IsInf(minLot, 1) {
		return int(slack)
	}

	lots := math.Ceil(TotalValue(w.holdings, w.cash) / minLot)
	budget := 4*lots + slack
	if budget > iterationCeiling {
		return iterationCeiling
	}
	return int(budget)
}

// wantsBuy reports whether the row under-shoots its target beyond the band
func (e *Engine) wantsBuy(row WeightRow) bool {
	return row.TargetWeight > row.CurrentWeight*(1+e.cfg.Delta)
}

// tryBuy buys exactly one lot of the first affordable under-weighted candidate.
func (e *Engine) tryBuy(w *workingCopy, rows []WeightRow) bool {
	for _, row := range rows {
		if !e.wantsBuy(row) {
			continue
		}

		cost := float64(row.LotSize) * row.LastPrice * (1 + e.cfg.Commission)
		if cost >= w.cash {
			continue
		}

		h := w.find(row.Ticker)
		if h == nil {
			w.holdings = append(w.holdings, Holding{
				Ticker:    row.Ticker,
				LotSize:   row.LotSize,
				LastPrice: row.LastPrice,
			})
			h = &w.holdings[len(w.holdings)-1]
		}
		h.Quantity += row.LotSize
		w.cash -= cost
		w.record(domain.ActionBuy, row.Ticker, row.LotSize, row.LotSize)
		return true
	}
	return false
}

// trySell sells whole lots of the first over-weighted candidate that can give
// some up without dropping below its target weight or the lot floor.
func (e *Engine) trySell(w *workingCopy, rows []WeightRow, total float64) bool {
	if total <= 0 {
		return false
	}

	for _, row := range rows {
		if e.wantsBuy(row) || row.CurrentWeight <= 0 {
			continue
		}
		h := w.find(row.Ticker)
		if h == nil {
			continue
		}

		lot := row.LotSize
		balance := h.Quantity
		if balance <= lot {
			continue
		}

		var lots int64
		for balance > lot &&
			float64(balance-lot)*row.LastPrice/total >= row.TargetWeight &&
			(balance-lot)/lot > e.cfg.MinLotsToKeep {
			balance -= lot
			lots++
		}
		if lots == 0 {
			continue
		}

		proceeds := float64(lots*lot) * row.LastPrice
		commission := proceeds * e.cfg.Commission

		h.Quantity = balance
		w.cash += proceeds - commission
		w.record(domain.ActionSell, row.Ticker, lots*lot, lot)
		return true
	}
	return false
}

// validateInputs rejects data that would corrupt the weight math
func validateInputs(portfolio *domain.Portfolio, index *domain.TargetIndex) error {
	if err := portfolio.Validate(); err != nil {
		return fmt.Errorf("invalid portfolio: %w", err)
	}
	if err := index.Validate(); err != nil {
		return fmt.Errorf("invalid index: %w", err)
	}
	for _, pos := range portfolio.Positions {
		c := index.Constituent(pos.Ticker)
		if c == nil || c.LotSize == pos.LotSize {
			continue
		}
		return fmt.Errorf("%w: %s lot size %d in portfolio but %d in index %s",
			domain.ErrDataInconsistency, pos.Ticker, pos.LotSize, c.LotSize, index.Name)
	}
	return nil
}

// projectPortfolio turns the working copy back into a portfolio snapshot,
// keeping broker identifiers of positions that already existed.
func projectPortfolio(base domain.Portfolio, w *workingCopy) domain.Portfolio {
	projected := domain.Portfolio{
		AccountID: base.AccountID,
		Currency:  base.Currency,
		FreeCash:  domain.CashFromFloat(w.cash),
		Positions: make([]domain.Position, 0, len(w.holdings)),
	}

	for _, h := range w.holdings {
		pos := domain.Position{
			Ticker:    h.Ticker,
			LotSize:   h.LotSize,
			Quantity:  h.Quantity,
			LastPrice: domain.CashFromFloat(h.LastPrice),
		}
		if orig := base.Position(h.Ticker); orig != nil {
			pos.UID = orig.UID
			pos.FIGI = orig.FIGI
			pos.LastPrice = orig.LastPrice
		}
		projected.Positions = append(projected.Positions, pos)
	}

	return projected
}
