package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)
		r.Get("/summary", h.HandleGetSummary)
		r.Get("/{orderID}", h.HandleGetTrade)
	})
}
