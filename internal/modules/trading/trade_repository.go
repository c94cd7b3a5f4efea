package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/rs/zerolog"
)

// TradeRepository handles journal database operations
type TradeRepository struct {
	ledgerDB *sql.DB // ledger.db - trades table
	log      zerolog.Logger
}

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade().
const tradesColumns = `id, order_id, account_id, ticker, instrument_uid, side, quantity, lots, price, status, error, source, executed_at, created_at`

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// Create inserts a new journal entry.
// An entry whose order_id is already journaled is skipped.
func (r *TradeRepository) Create(trade Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	exists, err := r.Exists(trade.OrderID)
	if err != nil {
		return fmt.Errorf("failed to check for existing trade: %w", err)
	}
	if exists {
		r.log.Debug().
			Str("order_id", trade.OrderID).
			Msg("Trade with order_id already exists, skipping duplicate")
		return nil
	}

	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now()
	}

	query := `
		INSERT INTO trades
		(order_id, account_id, ticker, instrument_uid, side, quantity, lots,
		 price, status, error, source, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.ledgerDB.Exec(query,
		trade.OrderID,
		trade.AccountID,
		utils.NormalizeSymbol(trade.Ticker),
		nullString(trade.InstrumentUID),
		string(trade.Side),
		trade.Quantity,
		trade.Lots,
		nullPrice(trade.Price),
		string(trade.Status),
		nullString(trade.Error),
		trade.Source,
		trade.ExecutedAt.Unix(),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.log.Info().
		Str("order_id", trade.OrderID).
		Str("ticker", trade.Ticker).
		Str("side", string(trade.Side)).
		Int64("quantity", trade.Quantity).
		Str("status", string(trade.Status)).
		Msg("Trade journaled")

	return nil
}

// GetByOrderID retrieves a journal entry by order ID.
// Returns nil, nil when not found.
func (r *TradeRepository) GetByOrderID(orderID string) (*Trade, error) {
	query := "SELECT " + tradesColumns + " FROM trades WHERE order_id = ?"

	trade, err := scanTrade(r.ledgerDB.QueryRow(query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade by order_id: %w", err)
	}

	return &trade, nil
}

// Exists checks if a trade with the given order_id already exists
func (r *TradeRepository) Exists(orderID string) (bool, error) {
	var exists int
	err := r.ledgerDB.QueryRow("SELECT 1 FROM trades WHERE order_id = ? LIMIT 1", orderID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}

	return true, nil
}

// GetHistory retrieves journal entries, most recent first
func (r *TradeRepository) GetHistory(limit int) ([]Trade, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.query("trade history", query, limit)
}

// GetByAccount retrieves journal entries of one account, most recent first
func (r *TradeRepository) GetByAccount(accountID string, limit int) ([]Trade, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		WHERE account_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.query("trades by account", query, accountID, limit)
}

// GetByTicker retrieves journal entries of one ticker, most recent first
func (r *TradeRepository) GetByTicker(ticker string, limit int) ([]Trade, error) {
	query := `
		SELECT ` + tradesColumns + ` FROM trades
		WHERE ticker = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`
	return r.query("trades by ticker", query, utils.NormalizeSymbol(ticker), limit)
}

// CountByStatus returns the number of journal entries per status
func (r *TradeRepository) CountByStatus() (map[TradeStatus]int, error) {
	rows, err := r.ledgerDB.Query("SELECT status, COUNT(*) FROM trades GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count trades: %w", err)
	}
	defer rows.Close()

	counts := make(map[TradeStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan trade count: %w", err)
		}
		counts[TradeStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade counts: %w", err)
	}

	return counts, nil
}

func (r *TradeRepository) query(what, query string, args ...interface{}) ([]Trade, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (Trade, error) {
	var trade Trade
	var instrumentUID, errMsg sql.NullString
	var price sql.NullFloat64
	var side, status string
	var executedAt, createdAt int64

	err := row.Scan(
		&trade.ID,
		&trade.OrderID,
		&trade.AccountID,
		&trade.Ticker,
		&instrumentUID,
		&side,
		&trade.Quantity,
		&trade.Lots,
		&price,
		&status,
		&errMsg,
		&trade.Source,
		&executedAt,
		&createdAt,
	)
	if err != nil {
		return trade, err
	}

	trade.InstrumentUID = instrumentUID.String
	trade.Error = errMsg.String
	trade.Price = price.Float64
	trade.Side = domain.ActionType(side)
	trade.Status = TradeStatus(status)
	trade.ExecutedAt = time.Unix(executedAt, 0).UTC()
	trade.CreatedAt = time.Unix(createdAt, 0).UTC()

	return trade, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullPrice(p float64) sql.NullFloat64 {
	if p <= 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p, Valid: true}
}
