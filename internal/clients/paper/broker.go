// Package paper provides a simulated broker that fills market orders at the
// last known price. It implements domain.BrokerClient.
package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderStatusFilled is the status of every accepted paper order
const OrderStatusFilled = "FILLED"

type instrument struct {
	meta  domain.Instrument
	price decimal.Decimal
}

type account struct {
	id        string
	name      string
	currency  domain.Currency
	cash      decimal.Decimal
	positions map[string]int64 // ticker -> shares
}

// Broker is an in-memory paper trading broker, safe for concurrent use.
type Broker struct {
	mu          sync.Mutex
	commission  decimal.Decimal
	accounts    map[string]*account
	instruments map[string]*instrument // by ticker
	failures    map[string]error       // by ticker
	log         zerolog.Logger
}

// NewBroker creates a paper broker charging a proportional commission on every fill
func NewBroker(commission float64, log zerolog.Logger) *Broker {
	return &Broker{
		commission:  decimal.NewFromFloat(commission),
		accounts:    make(map[string]*account),
		instruments: make(map[string]*instrument),
		failures:    make(map[string]error),
		log:         log.With().Str("client", "paper_broker").Logger(),
	}
}

// OpenAccount creates an account, or resets the cash of an existing one
func (b *Broker) OpenAccount(id, name string, cash domain.CashAmount) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("account id is required")
	}
	if err := cash.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if acc, ok := b.accounts[id]; ok {
		acc.cash = cash.Decimal()
		return nil
	}

	b.accounts[id] = &account{
		id:        id,
		name:      name,
		currency:  domain.CurrencyRUB,
		cash:      cash.Decimal(),
		positions: make(map[string]int64),
	}
	return nil
}

// AddInstrument registers or updates a tradeable instrument and its last price
func (b *Broker) AddInstrument(inst domain.Instrument, price float64) error {
	inst.Ticker = utils.NormalizeSymbol(inst.Ticker)
	if err := inst.Validate(); err != nil {
		return err
	}
	if price <= 0 {
		return fmt.Errorf("%w: %s: price %.4f must be positive", domain.ErrDataInconsistency, inst.Ticker, price)
	}
	if inst.UID == "" {
		inst.UID = "paper-" + inst.Ticker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.instruments[inst.Ticker] = &instrument{meta: inst, price: decimal.NewFromFloat(price)}
	return nil
}

// IndexSaved registers every constituent of an index as a tradeable instrument
// at the index's last price.
func (b *Broker) IndexSaved(index domain.TargetIndex) {
	for _, c := range index.Constituents {
		err := b.AddInstrument(domain.Instrument{
			Ticker:  c.Ticker,
			ISIN:    c.ISIN,
			Name:    c.ShortName,
			LotSize: c.LotSize,
		}, c.LastPrice)
		if err != nil {
			b.log.Warn().Err(err).Str("ticker", c.Ticker).Msg("Skipping constituent")
		}
	}
}

// SetPosition overrides the share count of a position
func (b *Broker) SetPosition(accountID, ticker string, quantity int64) error {
	ticker = utils.NormalizeSymbol(ticker)

	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	inst, ok := b.instruments[ticker]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownInstrument, ticker)
	}
	if quantity < 0 || quantity%inst.meta.LotSize != 0 {
		return fmt.Errorf("%w: %s: quantity %d is not a non-negative multiple of lot size %d",
			domain.ErrDataInconsistency, ticker, quantity, inst.meta.LotSize)
	}

	if quantity == 0 {
		delete(acc.positions, ticker)
	} else {
		acc.positions[ticker] = quantity
	}
	return nil
}

// FailOrdersFor makes every order for ticker fail with err until cleared
func (b *Broker) FailOrdersFor(ticker string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[strings.ToUpper(ticker)] = err
}

// ClearFailures removes all injected failures
func (b *Broker) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]error)
}

// GetAccounts implements domain.BrokerClient
func (b *Broker) GetAccounts(ctx context.Context) ([]domain.BrokerAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	accounts := make([]domain.BrokerAccount, 0, len(b.accounts))
	for _, acc := range b.accounts {
		accounts = append(accounts, domain.BrokerAccount{ID: acc.id, Name: acc.name})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// GetPortfolio implements domain.BrokerClient.
// Positions are ordered by ticker.
func (b *Broker) GetPortfolio(ctx context.Context, accountID string) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}

	tickers := make([]string, 0, len(acc.positions))
	for ticker := range acc.positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	portfolio := &domain.Portfolio{
		AccountID: acc.id,
		Currency:  acc.currency,
		FreeCash:  domain.CashFromDecimal(acc.cash),
		Positions: make([]domain.Position, 0, len(tickers)),
	}
	for _, ticker := range tickers {
		inst := b.instruments[ticker]
		portfolio.Positions = append(portfolio.Positions, domain.Position{
			UID:       inst.meta.UID,
			FIGI:      inst.meta.FIGI,
			Ticker:    ticker,
			LotSize:   inst.meta.LotSize,
			Quantity:  acc.positions[ticker],
			LastPrice: domain.CashFromDecimal(inst.price),
		})
	}

	return portfolio, nil
}

// PlaceOrder implements domain.BrokerClient.
// Orders fill completely at the last price or are rejected without side effects.
func (b *Broker) PlaceOrder(ctx context.Context, accountID string, order domain.OrderRequest) (*domain.BrokerOrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ticker := utils.NormalizeSymbol(order.Ticker)

	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err, ok := b.failures[ticker]; ok {
		return nil, err
	}
	inst, ok := b.instruments[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownInstrument, ticker)
	}
	if order.Quantity <= 0 || order.Quantity%inst.meta.LotSize != 0 {
		return nil, fmt.Errorf("quantity %d of %s is not a positive multiple of lot size %d",
			order.Quantity, ticker, inst.meta.LotSize)
	}
	if order.Lots != 0 && order.Lots*inst.meta.LotSize != order.Quantity {
		return nil, fmt.Errorf("%d lots of %s do not match quantity %d", order.Lots, ticker, order.Quantity)
	}

	value := inst.price.Mul(decimal.NewFromInt(order.Quantity))
	fee := value.Mul(b.commission)

	switch order.Side {
	case domain.ActionBuy:
		cost := value.Add(fee)
		if cost.GreaterThan(acc.cash) {
			return nil, fmt.Errorf("insufficient funds for %s: need %s, have %s",
				ticker, cost.StringFixed(2), acc.cash.StringFixed(2))
		}
		acc.cash = acc.cash.Sub(cost)
		acc.positions[ticker] += order.Quantity
	case domain.ActionSell:
		held := acc.positions[ticker]
		if held < order.Quantity {
			return nil, fmt.Errorf("insufficient position in %s: need %d, have %d", ticker, order.Quantity, held)
		}
		acc.cash = acc.cash.Add(value.Sub(fee))
		if held == order.Quantity {
			delete(acc.positions, ticker)
		} else {
			acc.positions[ticker] = held - order.Quantity
		}
	default:
		return nil, fmt.Errorf("invalid order side: %q", order.Side)
	}

	orderID := order.OrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}

	price, _ := inst.price.Float64()

	b.log.Debug().
		Str("account_id", accountID).
		Str("order_id", orderID).
		Str("ticker", ticker).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Float64("price", price).
		Msg("Paper order filled")

	return &domain.BrokerOrderResult{
		OrderID:  orderID,
		Ticker:   ticker,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
		Status:   OrderStatusFilled,
	}, nil
}

// ListInstruments returns every registered instrument ordered by ticker.
// It lets the broker act as the instrument source of the universe.
func (b *Broker) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	instruments := make([]domain.Instrument, 0, len(b.instruments))
	for _, inst := range b.instruments {
		instruments = append(instruments, inst.meta)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i].Ticker < instruments[j].Ticker })
	return instruments, nil
}
