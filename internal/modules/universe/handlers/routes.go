package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all universe routes
func (h *UniverseHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/indices", func(r chi.Router) {
		r.Get("/", h.HandleListIndices)
		r.Delete("/cache", h.HandleInvalidateAll)
		r.Get("/{name}", h.HandleGetIndex)
		r.Put("/{name}", h.HandleSaveIndex)
		r.Delete("/{name}", h.HandleDeleteIndex)
		r.Delete("/{name}/cache", h.HandleInvalidateIndex)
	})

	r.Route("/instruments", func(r chi.Router) {
		r.Get("/", h.HandleGetInstruments)
		r.Post("/refresh", h.HandleRefreshInstruments)
	})
}
