package domain

import "context"

// BrokerClient defines broker-agnostic account and order operations.
// All broker access goes through this interface so the orchestrator can run
// against the paper broker or a real one.
type BrokerClient interface {
	// GetAccounts lists the accounts available to the user
	GetAccounts(ctx context.Context) ([]BrokerAccount, error)

	// GetPortfolio returns free cash and share positions of an account
	GetPortfolio(ctx context.Context, accountID string) (*Portfolio, error)

	// PlaceOrder submits a single market order
	PlaceOrder(ctx context.Context, accountID string, order OrderRequest) (*BrokerOrderResult, error)
}

// InstrumentResolver looks up instrument metadata by ticker.
// Returns nil, nil when the ticker is unknown.
type InstrumentResolver interface {
	FindByTicker(ctx context.Context, ticker string) (*Instrument, error)
}

// IndexProvider supplies the current composition of a named index.
// Returns an error wrapping ErrIndexNotFound for unknown names.
type IndexProvider interface {
	GetIndex(ctx context.Context, name string) (*TargetIndex, error)
}
