// Package handlers provides HTTP handlers for brokerage accounts and their portfolios.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AccountReader reads accounts and portfolio snapshots
type AccountReader interface {
	Accounts(ctx context.Context) ([]domain.BrokerAccount, error)
	Portfolio(ctx context.Context, accountID string) (*domain.Portfolio, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	accounts AccountReader
	log      zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(accounts AccountReader, log zerolog.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		log:      log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetAccounts handles GET /api/accounts
func (h *Handler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.Accounts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get accounts")
		h.writeError(w, http.StatusInternalServerError, "Failed to get accounts")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": accounts,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPortfolio handles GET /api/accounts/{accountID}/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	p, err := h.accounts.Portfolio(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to get portfolio")
		h.writeError(w, http.StatusInternalServerError, "Failed to get portfolio")
		return
	}

	total := p.TotalValue()
	positions := make([]map[string]interface{}, 0, len(p.Positions))
	for _, pos := range p.Positions {
		value := pos.MarketValue()
		weight := 0.0
		if total > 0 {
			weight = value / total * 100
		}
		positions = append(positions, map[string]interface{}{
			"ticker":       pos.Ticker,
			"uid":          pos.UID,
			"figi":         pos.FIGI,
			"lot_size":     pos.LotSize,
			"quantity":     pos.Quantity,
			"lots":         pos.Lots(),
			"last_price":   pos.LastPrice.Float64(),
			"market_value": value,
			"weight":       weight,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"account_id":  accountID,
			"currency":    p.Currency,
			"free_cash":   p.FreeCash.Float64(),
			"total_value": total,
			"positions":   positions,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
