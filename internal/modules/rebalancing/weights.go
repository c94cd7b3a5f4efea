package rebalancing

import (
	"cmp"
	"slices"

	"github.com/aristath/indextracker/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// Holding is one line of the engine's working copy.
// Quantity is in shares and LastPrice is the position's own mark.
type Holding struct {
	Ticker    string
	LotSize   int64
	Quantity  int64
	LastPrice float64
}

// MarketValue returns quantity * last price
func (h Holding) MarketValue() float64 {
	return float64(h.Quantity) * h.LastPrice
}

// HoldingsFromPositions converts a portfolio snapshot into working-copy holdings,
// preserving order.
func HoldingsFromPositions(positions []domain.Position) []Holding {
	holdings := make([]Holding, 0, len(positions))
	for _, p := range positions {
		holdings = append(holdings, Holding{
			Ticker:    p.Ticker,
			LotSize:   p.LotSize,
			Quantity:  p.Quantity,
			LastPrice: p.LastPrice.Float64(),
		})
	}
	return holdings
}

// TotalValue returns free cash plus the market value of every holding
func TotalValue(holdings []Holding, freeCash float64) float64 {
	if len(holdings) == 0 {
		return freeCash
	}
	values := make([]float64, len(holdings))
	for i, h := range holdings {
		values[i] = h.MarketValue()
	}
	return floats.Sum(values) + freeCash
}

// WeightRow is the per-ticker record of the weight table.
type WeightRow struct {
	Ticker        string
	TargetWeight  float64 // index weight / 100, 0 when not in the index
	CurrentWeight float64 // market value / total value, 0 when not held
	Ratio         float64 // current / target; 1 when target is 0
	Over          bool    // ratio above 1 + delta, always true when target is 0
	LotSize       int64
	LastPrice     float64
	Held          bool
}

// BuildWeights computes the weight table for the given holdings and index and
// returns it in trade-candidate order (see CompareRows).
//
// Constituent rows use the index lot size and price; rows for tickers held but
// absent from the index use the holding's. Input order (index first, then
// portfolio extras) is kept for equal keys so the result is deterministic.
func BuildWeights(holdings []Holding, constituents []domain.IndexConstituent, total, delta float64) []WeightRow {
	byTicker := make(map[string]Holding, len(holdings))
	for _, h := range holdings {
		byTicker[h.Ticker] = h
	}

	currentWeight := func(ticker string) (float64, bool) {
		h, ok := byTicker[ticker]
		if !ok {
			return 0, false
		}
		if total <= 0 {
			return 0, true
		}
		return h.MarketValue() / total, true
	}

	rows := make([]WeightRow, 0, len(constituents)+len(holdings))
	inIndex := make(map[string]bool, len(constituents))

	for _, c := range constituents {
		inIndex[c.Ticker] = true
		current, held := currentWeight(c.Ticker)
		rows = append(rows, newRow(c.Ticker, c.Weight/100, current, delta, c.LotSize, c.LastPrice, held))
	}

	for _, h := range holdings {
		if inIndex[h.Ticker] {
			continue
		}
		current, _ := currentWeight(h.Ticker)
		rows = append(rows, newRow(h.Ticker, 0, current, delta, h.LotSize, h.LastPrice, true))
	}

	slices.SortStableFunc(rows, CompareRows)
	return rows
}

func newRow(ticker string, target, current, delta float64, lotSize int64, price float64, held bool) WeightRow {
	row := WeightRow{
		Ticker:        ticker,
		TargetWeight:  target,
		CurrentWeight: current,
		LotSize:       lotSize,
		LastPrice:     price,
		Held:          held,
	}
	if target > 0 {
		row.Ratio = current / target
		row.Over = row.Ratio > 1+delta
	} else {
		// Dropped from the index: maximal urgency, sorts first as a sell candidate
		row.Ratio = 1
		row.Over = true
	}
	return row
}

// CompareRows orders weight rows for candidate selection:
// over-target first, then lowest ratio (most under-weighted), then highest target weight.
func CompareRows(a, b WeightRow) int {
	if a.Over != b.Over {
		if a.Over {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Ratio, b.Ratio); c != 0 {
		return c
	}
	return cmp.Compare(b.TargetWeight, a.TargetWeight)
}
