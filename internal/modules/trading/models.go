// Package trading keeps the execution journal: one record per submitted order.
package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/indextracker/internal/domain"
)

// TradeStatus is the outcome of an order submission
type TradeStatus string

const (
	TradeStatusFilled TradeStatus = "FILLED"
	TradeStatusFailed TradeStatus = "FAILED"
)

// Trade sources
const (
	SourceRebalance = "rebalance"
	SourceAPI       = "api"
)

// Trade is one journal entry.
// Quantity is in shares; Price is the fill price and zero for failed orders.
type Trade struct {
	ID            int64             `json:"id"`
	OrderID       string            `json:"order_id"`
	AccountID     string            `json:"account_id"`
	Ticker        string            `json:"ticker"`
	InstrumentUID string            `json:"instrument_uid,omitempty"`
	Side          domain.ActionType `json:"side"`
	Quantity      int64             `json:"quantity"`
	Lots          int64             `json:"lots"`
	Price         float64           `json:"price,omitempty"`
	Status        TradeStatus       `json:"status"`
	Error         string            `json:"error,omitempty"`
	Source        string            `json:"source"`
	ExecutedAt    time.Time         `json:"executed_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Validate checks the journal entry before insertion
func (t Trade) Validate() error {
	if strings.TrimSpace(t.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return fmt.Errorf("account_id is required")
	}
	if strings.TrimSpace(t.Ticker) == "" {
		return fmt.Errorf("ticker is required")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("invalid side: %q", t.Side)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", t.Quantity)
	}
	switch t.Status {
	case TradeStatusFilled:
		if t.Price <= 0 {
			return fmt.Errorf("price must be positive for a filled trade, got %f", t.Price)
		}
	case TradeStatusFailed:
	default:
		return fmt.Errorf("invalid status: %q", t.Status)
	}
	if t.Source == "" {
		return fmt.Errorf("source is required")
	}
	return nil
}

// NewFilledTrade builds the journal entry of a successful submission
func NewFilledTrade(accountID, source string, order domain.OrderRequest, result *domain.BrokerOrderResult, at time.Time) Trade {
	trade := tradeFromOrder(accountID, source, order, at)
	trade.Status = TradeStatusFilled
	if result != nil {
		trade.Price = result.Price
		if result.OrderID != "" {
			trade.OrderID = result.OrderID
		}
	}
	return trade
}

// NewFailedTrade builds the journal entry of a rejected submission
func NewFailedTrade(accountID, source string, order domain.OrderRequest, cause error, at time.Time) Trade {
	trade := tradeFromOrder(accountID, source, order, at)
	trade.Status = TradeStatusFailed
	if cause != nil {
		trade.Error = cause.Error()
	}
	return trade
}

func tradeFromOrder(accountID, source string, order domain.OrderRequest, at time.Time) Trade {
	return Trade{
		OrderID:       order.OrderID,
		AccountID:     accountID,
		Ticker:        order.Ticker,
		InstrumentUID: order.InstrumentUID,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Lots:          order.Lots,
		Source:        source,
		ExecutedAt:    at,
	}
}
