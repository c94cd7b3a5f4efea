// Package universe persists the tradeable universe: index compositions and
// instrument metadata.
package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/indextracker/internal/database"
	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/rs/zerolog"
)

// IndexSummary describes a stored index without its constituents
type IndexSummary struct {
	Name         string    `json:"name"`
	Date         string    `json:"date"`
	Constituents int       `json:"constituents"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IndexRepository handles index composition operations.
// It is the IndexProvider used by the rebalancer.
type IndexRepository struct {
	universeDB *sql.DB // universe.db - indices and index_constituents tables
	log        zerolog.Logger
}

// constituentsColumns must match scanConstituent()
const constituentsColumns = `ticker, short_name, isin, weight, lot_size, last_price`

// NewIndexRepository creates a new index repository
func NewIndexRepository(universeDB *sql.DB, log zerolog.Logger) *IndexRepository {
	return &IndexRepository{
		universeDB: universeDB,
		log:        log.With().Str("repo", "index").Logger(),
	}
}

// normalizeIndexName upper-cases and trims index names
func normalizeIndexName(name string) string {
	return utils.NormalizeSymbol(name)
}

// Save replaces the stored composition of an index.
// The whole composition is validated first; invalid data is never stored.
func (r *IndexRepository) Save(index domain.TargetIndex) error {
	index.Name = normalizeIndexName(index.Name)
	if index.Name == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrDataInconsistency)
	}
	if _, err := time.Parse("2006-01-02", index.Date); err != nil {
		return fmt.Errorf("%w: index %s: date %q is not YYYY-MM-DD", domain.ErrDataInconsistency, index.Name, index.Date)
	}
	if err := index.Validate(); err != nil {
		return err
	}

	err := database.WithTransaction(r.universeDB, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO indices (name, date, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET date = excluded.date, updated_at = excluded.updated_at
		`, index.Name, index.Date, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert index: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM index_constituents WHERE index_name = ?", index.Name); err != nil {
			return fmt.Errorf("failed to clear constituents: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO index_constituents
			(index_name, position, ticker, short_name, isin, weight, lot_size, last_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare constituent insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range index.Constituents {
			_, err := stmt.Exec(index.Name, i, c.Ticker, nullString(c.ShortName), nullString(c.ISIN),
				c.Weight, c.LotSize, c.LastPrice)
			if err != nil {
				return fmt.Errorf("failed to insert constituent %s: %w", c.Ticker, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save index %s: %w", index.Name, err)
	}

	r.log.Info().
		Str("index", index.Name).
		Str("date", index.Date).
		Int("constituents", len(index.Constituents)).
		Msg("Index composition saved")

	return nil
}

// GetIndex returns the stored composition of an index, constituents in
// published order. Unknown names fail with ErrIndexNotFound.
func (r *IndexRepository) GetIndex(ctx context.Context, name string) (*domain.TargetIndex, error) {
	name = normalizeIndexName(name)

	index := &domain.TargetIndex{Name: name}
	err := r.universeDB.QueryRowContext(ctx, "SELECT date FROM indices WHERE name = ?", name).Scan(&index.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index %s: %w", name, err)
	}

	rows, err := r.universeDB.QueryContext(ctx, `
		SELECT `+constituentsColumns+` FROM index_constituents
		WHERE index_name = ?
		ORDER BY position
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get constituents of %s: %w", name, err)
	}
	defer rows.Close()

	index.Constituents = make([]domain.IndexConstituent, 0)
	for rows.Next() {
		c, err := scanConstituent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constituent: %w", err)
		}
		index.Constituents = append(index.Constituents, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating constituents: %w", err)
	}

	return index, nil
}

// List returns a summary of every stored index, ordered by name
func (r *IndexRepository) List() ([]IndexSummary, error) {
	rows, err := r.universeDB.Query(`
		SELECT i.name, i.date, i.updated_at, COUNT(c.ticker)
		FROM indices i
		LEFT JOIN index_constituents c ON c.index_name = i.name
		GROUP BY i.name, i.date, i.updated_at
		ORDER BY i.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	defer rows.Close()

	summaries := make([]IndexSummary, 0)
	for rows.Next() {
		var s IndexSummary
		var updatedAt int64
		if err := rows.Scan(&s.Name, &s.Date, &updatedAt, &s.Constituents); err != nil {
			return nil, fmt.Errorf("failed to scan index summary: %w", err)
		}
		s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indices: %w", err)
	}

	return summaries, nil
}

// Delete removes an index and its constituents. Deleting an unknown index is a no-op.
func (r *IndexRepository) Delete(name string) error {
	name = normalizeIndexName(name)
	if _, err := r.universeDB.Exec("DELETE FROM indices WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	return nil
}

func scanConstituent(rows *sql.Rows) (domain.IndexConstituent, error) {
	var c domain.IndexConstituent
	var shortName, isin sql.NullString

	if err := rows.Scan(&c.Ticker, &shortName, &isin, &c.Weight, &c.LotSize, &c.LastPrice); err != nil {
		return c, err
	}
	c.ShortName = shortName.String
	c.ISIN = isin.String
	return c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
