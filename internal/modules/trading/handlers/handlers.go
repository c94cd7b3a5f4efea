// Package handlers provides HTTP handlers for the execution journal.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/indextracker/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	log       zerolog.Logger
	tradeRepo *trading.TradeRepository
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(tradeRepo *trading.TradeRepository, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		tradeRepo: tradeRepo,
		log:       log.With().Str("handler", "trading").Logger(),
	}
}

func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// HandleGetTrades returns journal entries, newest first.
// Optional filters: account, ticker.
// GET /api/trades
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	query := r.URL.Query()

	var (
		trades []trading.Trade
		err    error
	)
	switch {
	case query.Get("account") != "":
		trades, err = h.tradeRepo.GetByAccount(query.Get("account"), limit)
	case query.Get("ticker") != "":
		trades, err = h.tradeRepo.GetByTicker(query.Get("ticker"), limit)
	default:
		trades, err = h.tradeRepo.GetHistory(limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get trade history")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": trades,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(trades),
			"limit":     limit,
		},
	})
}

// HandleGetSummary returns journal entry counts per status
// GET /api/trades/summary
func (h *TradingHandlers) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.tradeRepo.CountByStatus()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count trades")
		h.writeError(w, http.StatusInternalServerError, "Failed to count trades")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"filled": counts[trading.TradeStatusFilled],
			"failed": counts[trading.TradeStatusFailed],
			"total":  total,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetTrade returns one journal entry by order id
// GET /api/trades/{orderID}
func (h *TradingHandlers) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	trade, err := h.tradeRepo.GetByOrderID(orderID)
	if err != nil {
		h.log.Error().Err(err).Str("order_id", orderID).Msg("Failed to get trade")
		h.writeError(w, http.StatusInternalServerError, "Failed to get trade")
		return
	}
	if trade == nil {
		h.writeError(w, http.StatusNotFound, "Trade not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": trade,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
