package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/indextracker/internal/database"
	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/rs/zerolog"
)

// InstrumentSource lists every instrument the broker can trade
type InstrumentSource interface {
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
}

// InstrumentRepository stores instrument metadata and resolves tickers.
// A lookup miss triggers a refresh from the source before giving up.
type InstrumentRepository struct {
	universeDB *sql.DB // universe.db - instruments table
	source     InstrumentSource
	refreshMu  sync.Mutex
	log        zerolog.Logger
}

// instrumentsColumns must match scanInstrument()
const instrumentsColumns = `ticker, uid, figi, isin, name, lot_size`

// NewInstrumentRepository creates a new instrument repository.
// source may be nil, in which case misses are final.
func NewInstrumentRepository(universeDB *sql.DB, source InstrumentSource, log zerolog.Logger) *InstrumentRepository {
	return &InstrumentRepository{
		universeDB: universeDB,
		source:     source,
		log:        log.With().Str("repo", "instrument").Logger(),
	}
}

func normalizeTicker(ticker string) string {
	return utils.NormalizeSymbol(ticker)
}

// FindByTicker returns the instrument for a ticker.
// Returns nil, nil when the ticker is unknown even after a refresh.
func (r *InstrumentRepository) FindByTicker(ctx context.Context, ticker string) (*domain.Instrument, error) {
	ticker = normalizeTicker(ticker)

	inst, err := r.getByTicker(ctx, ticker)
	if err != nil || inst != nil || r.source == nil {
		return inst, err
	}

	r.log.Debug().Str("ticker", ticker).Msg("Instrument not cached, refreshing from source")
	if _, err := r.Refresh(ctx); err != nil {
		return nil, err
	}

	return r.getByTicker(ctx, ticker)
}

func (r *InstrumentRepository) getByTicker(ctx context.Context, ticker string) (*domain.Instrument, error) {
	query := "SELECT " + instrumentsColumns + " FROM instruments WHERE ticker = ?"

	inst, err := scanInstrument(r.universeDB.QueryRowContext(ctx, query, ticker))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %s: %w", ticker, err)
	}
	return &inst, nil
}

// Refresh replaces the cached instruments with the source's current list.
// Invalid entries are skipped with a warning. Returns the number stored.
func (r *InstrumentRepository) Refresh(ctx context.Context) (int, error) {
	if r.source == nil {
		return 0, fmt.Errorf("no instrument source configured")
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	instruments, err := r.source.ListInstruments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list instruments: %w", err)
	}

	valid := make([]domain.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		inst.Ticker = normalizeTicker(inst.Ticker)
		if err := inst.Validate(); err != nil {
			r.log.Warn().Err(err).Str("uid", inst.UID).Msg("Skipping invalid instrument")
			continue
		}
		valid = append(valid, inst)
	}

	if err := r.UpsertAll(valid); err != nil {
		return 0, err
	}

	r.log.Info().Int("instruments", len(valid)).Msg("Instruments refreshed")
	return len(valid), nil
}

// IndexSaved refreshes the instruments after a new index composition reached
// the source, so changed lot sizes are picked up before the next rebalance.
func (r *InstrumentRepository) IndexSaved(index domain.TargetIndex) {
	if r.source == nil {
		return
	}
	if _, err := r.Refresh(context.Background()); err != nil {
		r.log.Warn().Err(err).Str("index", index.Name).Msg("Failed to refresh instruments after index update")
	}
}

// Upsert stores a single instrument
func (r *InstrumentRepository) Upsert(inst domain.Instrument) error {
	return r.UpsertAll([]domain.Instrument{inst})
}

// UpsertAll stores instruments in one transaction
func (r *InstrumentRepository) UpsertAll(instruments []domain.Instrument) error {
	now := time.Now().Unix()

	err := database.WithTransaction(r.universeDB, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO instruments (ticker, uid, figi, isin, name, lot_size, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ticker) DO UPDATE SET
				uid = excluded.uid,
				figi = excluded.figi,
				isin = excluded.isin,
				name = excluded.name,
				lot_size = excluded.lot_size,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare instrument upsert: %w", err)
		}
		defer stmt.Close()

		for _, inst := range instruments {
			if err := inst.Validate(); err != nil {
				return err
			}
			_, err := stmt.Exec(normalizeTicker(inst.Ticker), inst.UID, nullString(inst.FIGI),
				nullString(inst.ISIN), nullString(inst.Name), inst.LotSize, now)
			if err != nil {
				return fmt.Errorf("failed to upsert instrument %s: %w", inst.Ticker, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store instruments: %w", err)
	}
	return nil
}

// GetAll returns every cached instrument ordered by ticker
func (r *InstrumentRepository) GetAll(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := r.universeDB.QueryContext(ctx, "SELECT "+instrumentsColumns+" FROM instruments ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to get instruments: %w", err)
	}
	defer rows.Close()

	instruments := make([]domain.Instrument, 0)
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (domain.Instrument, error) {
	var inst domain.Instrument
	var figi, isin, name sql.NullString

	if err := row.Scan(&inst.Ticker, &inst.UID, &figi, &isin, &name, &inst.LotSize); err != nil {
		return inst, err
	}
	inst.FIGI = figi.String
	inst.ISIN = isin.String
	inst.Name = name.String
	return inst, nil
}
