package trading

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	testingpkg "github.com/aristath/indextracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *TradeRepository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	return NewTradeRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func filledTrade(orderID, ticker string, quantity int64, price float64, at time.Time) Trade {
	return Trade{
		OrderID:    orderID,
		AccountID:  "acc-1",
		Ticker:     ticker,
		Side:       domain.ActionBuy,
		Quantity:   quantity,
		Lots:       quantity,
		Price:      price,
		Status:     TradeStatusFilled,
		Source:     SourceRebalance,
		ExecutedAt: at,
	}
}

func TestTrade_Validate(t *testing.T) {
	base := filledTrade("ord-1", "SBER", 10, 250, time.Now())

	testCases := []struct {
		name     string
		mutate   func(*Trade)
		errorMsg string
	}{
		{"valid filled", func(*Trade) {}, ""},
		{"valid failed without price", func(tr *Trade) { tr.Status = TradeStatusFailed; tr.Price = 0 }, ""},
		{"missing order id", func(tr *Trade) { tr.OrderID = "" }, "order_id is required"},
		{"missing account", func(tr *Trade) { tr.AccountID = " " }, "account_id is required"},
		{"missing ticker", func(tr *Trade) { tr.Ticker = "" }, "ticker is required"},
		{"invalid side", func(tr *Trade) { tr.Side = "HOLD" }, "invalid side"},
		{"zero quantity", func(tr *Trade) { tr.Quantity = 0 }, "quantity must be positive"},
		{"filled without price", func(tr *Trade) { tr.Price = 0 }, "price must be positive"},
		{"unknown status", func(tr *Trade) { tr.Status = "PENDING" }, "invalid status"},
		{"missing source", func(tr *Trade) { tr.Source = "" }, "source is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			trade := base
			tc.mutate(&trade)
			err := trade.Validate()
			if tc.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

func TestNewFilledAndFailedTrade(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	order := domain.OrderRequest{
		OrderID:       "ord-1",
		InstrumentUID: "uid-sber",
		Ticker:        "SBER",
		Side:          domain.ActionSell,
		Lots:          2,
		Quantity:      20,
	}

	filled := NewFilledTrade("acc-1", SourceAPI, order, &domain.BrokerOrderResult{OrderID: "broker-1", Price: 280.5}, at)
	assert.Equal(t, TradeStatusFilled, filled.Status)
	assert.Equal(t, "broker-1", filled.OrderID)
	assert.Equal(t, 280.5, filled.Price)
	assert.Equal(t, int64(20), filled.Quantity)
	assert.Equal(t, int64(2), filled.Lots)
	assert.Equal(t, "uid-sber", filled.InstrumentUID)
	assert.NoError(t, filled.Validate())

	failed := NewFailedTrade("acc-1", SourceRebalance, order, errors.New("market closed"), at)
	assert.Equal(t, TradeStatusFailed, failed.Status)
	assert.Equal(t, "ord-1", failed.OrderID)
	assert.Equal(t, "market closed", failed.Error)
	assert.Zero(t, failed.Price)
	assert.NoError(t, failed.Validate())
}

func TestCreate_AndGetByOrderID(t *testing.T) {
	repo := newTestRepository(t)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	trade := filledTrade("ord-1", " sber ", 10, 250.5, at)
	trade.InstrumentUID = "uid-sber"

	require.NoError(t, repo.Create(trade))

	stored, err := repo.GetByOrderID("ord-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Positive(t, stored.ID)
	assert.Equal(t, "SBER", stored.Ticker)
	assert.Equal(t, "uid-sber", stored.InstrumentUID)
	assert.Equal(t, domain.ActionBuy, stored.Side)
	assert.Equal(t, int64(10), stored.Quantity)
	assert.Equal(t, 250.5, stored.Price)
	assert.Equal(t, TradeStatusFilled, stored.Status)
	assert.True(t, at.Equal(stored.ExecutedAt))
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestCreate_FailedTradeStoresError(t *testing.T) {
	repo := newTestRepository(t)

	trade := filledTrade("ord-f", "GAZP", 10, 0, time.Now())
	trade.Status = TradeStatusFailed
	trade.Error = "insufficient funds"

	require.NoError(t, repo.Create(trade))

	stored, err := repo.GetByOrderID("ord-f")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, TradeStatusFailed, stored.Status)
	assert.Equal(t, "insufficient funds", stored.Error)
	assert.Zero(t, stored.Price)
}

func TestCreate_RejectsInvalidTrade(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Create(filledTrade("ord-1", "SBER", 10, -1, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price must be positive")

	exists, err := repo.Exists("ord-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreate_SkipsDuplicateOrderID(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Create(filledTrade("ord-1", "SBER", 10, 250, time.Now())))
	require.NoError(t, repo.Create(filledTrade("ord-1", "SBER", 99, 999, time.Now())))

	history, err := repo.GetHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(10), history[0].Quantity)
}

func TestGetByOrderID_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	trade, err := repo.GetByOrderID("missing")
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestQueries(t *testing.T) {
	repo := newTestRepository(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first := filledTrade("ord-1", "SBER", 10, 250, base)
	second := filledTrade("ord-2", "GAZP", 10, 160, base.Add(time.Minute))
	second.AccountID = "acc-2"
	third := filledTrade("ord-3", "SBER", 20, 251, base.Add(2*time.Minute))
	third.Status = TradeStatusFailed
	third.Price = 0

	for _, tr := range []Trade{first, second, third} {
		require.NoError(t, repo.Create(tr))
	}

	history, err := repo.GetHistory(2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ord-3", history[0].OrderID)
	assert.Equal(t, "ord-2", history[1].OrderID)

	byAccount, err := repo.GetByAccount("acc-1", 10)
	require.NoError(t, err)
	require.Len(t, byAccount, 2)
	assert.Equal(t, "ord-3", byAccount[0].OrderID)
	assert.Equal(t, "ord-1", byAccount[1].OrderID)

	byTicker, err := repo.GetByTicker("sber", 10)
	require.NoError(t, err)
	assert.Len(t, byTicker, 2)

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[TradeStatusFilled])
	assert.Equal(t, 1, counts[TradeStatusFailed])

	empty, err := repo.GetByAccount("nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
