// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyRUB  Currency = "RUB"
	CurrencyUSD  Currency = "USD"
	CurrencyEUR  Currency = "EUR"
	CurrencyTEST Currency = "TEST" // For paper trading
)

// Instrument is the broker-side metadata of a tradeable security.
type Instrument struct {
	UID     string `json:"uid" msgpack:"uid"`
	FIGI    string `json:"figi" msgpack:"figi"`
	Ticker  string `json:"ticker" msgpack:"ticker"`
	ISIN    string `json:"isin,omitempty" msgpack:"isin"`
	Name    string `json:"name,omitempty" msgpack:"name"`
	LotSize int64  `json:"lot_size" msgpack:"lot_size"`
}

// Validate checks the fields the rebalancer relies on
func (i Instrument) Validate() error {
	if strings.TrimSpace(i.Ticker) == "" {
		return fmt.Errorf("%w: instrument %q has empty ticker", ErrDataInconsistency, i.UID)
	}
	if i.LotSize < 1 {
		return fmt.Errorf("%w: instrument %s: lot size %d must be at least 1", ErrDataInconsistency, i.Ticker, i.LotSize)
	}
	return nil
}

// Position represents an owned instrument holding.
// Quantity is expressed in shares, not lots.
type Position struct {
	UID       string     `json:"uid,omitempty"`
	FIGI      string     `json:"figi,omitempty"`
	Ticker    string     `json:"ticker"`
	LotSize   int64      `json:"lot_size"`
	Quantity  int64      `json:"quantity"`
	LastPrice CashAmount `json:"last_price"`
}

// MarketValue returns quantity * last price
func (p Position) MarketValue() float64 {
	return float64(p.Quantity) * p.LastPrice.Float64()
}

// Lots returns the number of whole lots held
func (p Position) Lots() int64 {
	if p.LotSize < 1 {
		return 0
	}
	return p.Quantity / p.LotSize
}

// Validate checks the position invariants
func (p Position) Validate() error {
	if strings.TrimSpace(p.Ticker) == "" {
		return fmt.Errorf("%w: position %q has empty ticker", ErrDataInconsistency, p.UID)
	}
	if p.LotSize < 1 {
		return fmt.Errorf("%w: position %s: lot size %d must be at least 1", ErrDataInconsistency, p.Ticker, p.LotSize)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: position %s: negative quantity %d", ErrDataInconsistency, p.Ticker, p.Quantity)
	}
	if err := p.LastPrice.Validate(); err != nil {
		return fmt.Errorf("position %s: %w", p.Ticker, err)
	}
	if !p.LastPrice.IsPositive() {
		return fmt.Errorf("%w: position %s: price %s must be positive", ErrDataInconsistency, p.Ticker, p.LastPrice)
	}
	return nil
}

// Portfolio is a snapshot of an account: free cash plus positions, unique by ticker.
type Portfolio struct {
	AccountID string     `json:"account_id,omitempty"`
	Currency  Currency   `json:"currency,omitempty"`
	FreeCash  CashAmount `json:"free_cash"`
	Positions []Position `json:"positions"`
}

// Position returns the position for a ticker, or nil
func (p *Portfolio) Position(ticker string) *Position {
	for i := range p.Positions {
		if p.Positions[i].Ticker == ticker {
			return &p.Positions[i]
		}
	}
	return nil
}

// TotalValue returns free cash plus the market value of all positions
func (p *Portfolio) TotalValue() float64 {
	total := p.FreeCash.Float64()
	for _, pos := range p.Positions {
		total += pos.MarketValue()
	}
	return total
}

// Validate checks every position and ticker uniqueness
func (p *Portfolio) Validate() error {
	if err := p.FreeCash.Validate(); err != nil {
		return fmt.Errorf("free cash: %w", err)
	}
	seen := make(map[string]bool, len(p.Positions))
	for _, pos := range p.Positions {
		if err := pos.Validate(); err != nil {
			return err
		}
		if seen[pos.Ticker] {
			return fmt.Errorf("%w: duplicate position ticker %s", ErrDataInconsistency, pos.Ticker)
		}
		seen[pos.Ticker] = true
	}
	return nil
}

// IndexConstituent is one security of a target index.
// Weight is a percentage of the total index value (0-100).
type IndexConstituent struct {
	Ticker    string  `json:"ticker" msgpack:"ticker"`
	ShortName string  `json:"short_name,omitempty" msgpack:"short_name"`
	ISIN      string  `json:"isin,omitempty" msgpack:"isin"`
	Weight    float64 `json:"weight" msgpack:"weight"`
	LotSize   int64   `json:"lot_size" msgpack:"lot_size"`
	LastPrice float64 `json:"last_price" msgpack:"last_price"`
}

// Validate checks the constituent invariants
func (c IndexConstituent) Validate() error {
	if strings.TrimSpace(c.Ticker) == "" {
		return fmt.Errorf("%w: index constituent has empty ticker", ErrDataInconsistency)
	}
	if c.Weight < 0 || c.Weight > 100 {
		return fmt.Errorf("%w: constituent %s: weight %.4f outside [0, 100]", ErrDataInconsistency, c.Ticker, c.Weight)
	}
	if c.LotSize < 1 {
		return fmt.Errorf("%w: constituent %s: lot size %d must be at least 1", ErrDataInconsistency, c.Ticker, c.LotSize)
	}
	if c.LastPrice <= 0 {
		return fmt.Errorf("%w: constituent %s: price %.4f must be positive", ErrDataInconsistency, c.Ticker, c.LastPrice)
	}
	return nil
}

// TargetIndex is a dated index composition, unique by ticker.
type TargetIndex struct {
	Name         string             `json:"name" msgpack:"name"`
	Date         string             `json:"date" msgpack:"date"` // YYYY-MM-DD
	Constituents []IndexConstituent `json:"constituents" msgpack:"constituents"`
}

// Constituent returns the constituent for a ticker, or nil
func (t *TargetIndex) Constituent(ticker string) *IndexConstituent {
	for i := range t.Constituents {
		if t.Constituents[i].Ticker == ticker {
			return &t.Constituents[i]
		}
	}
	return nil
}

// Validate checks every constituent and ticker uniqueness
func (t *TargetIndex) Validate() error {
	seen := make(map[string]bool, len(t.Constituents))
	for _, c := range t.Constituents {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("index %s: %w", t.Name, err)
		}
		if seen[c.Ticker] {
			return fmt.Errorf("%w: index %s: duplicate ticker %s", ErrDataInconsistency, t.Name, c.Ticker)
		}
		seen[c.Ticker] = true
	}
	return nil
}
