package domain

// Broker-agnostic types for account and order handling

// BrokerAccount represents a brokerage account (broker-agnostic)
type BrokerAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OrderRequest is a single market order (broker-agnostic)
type OrderRequest struct {
	OrderID       string     // Client-generated idempotency key
	InstrumentUID string     // Broker instrument id
	Ticker        string     // Security ticker
	Side          ActionType // BUY or SELL
	Lots          int64      // Order size in lots
	Quantity      int64      // Order size in shares
}

// BrokerOrderResult represents the result of placing an order (broker-agnostic)
type BrokerOrderResult struct {
	OrderID  string     `json:"order_id"`
	Ticker   string     `json:"ticker"`
	Side     ActionType `json:"side"`
	Quantity int64      `json:"quantity"`
	Price    float64    `json:"price"`
	Status   string     `json:"status"`
}

// OrderRequestFromAction builds an order for an enriched action
func OrderRequestFromAction(orderID string, action Action) OrderRequest {
	return OrderRequest{
		OrderID:       orderID,
		InstrumentUID: action.Instrument.UID,
		Ticker:        action.Instrument.Ticker,
		Side:          action.Type,
		Lots:          action.Lots(),
		Quantity:      action.Quantity,
	}
}
