// Package handlers provides HTTP handlers for index compositions and instruments.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/modules/universe"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// IndexObserver is notified after an index composition was stored
type IndexObserver interface {
	IndexSaved(index domain.TargetIndex)
}

// CacheInvalidator drops cached index compositions
type CacheInvalidator interface {
	Invalidate(name string) error
	InvalidateAll() error
}

// UniverseHandlers contains HTTP handlers for the universe API
type UniverseHandlers struct {
	indexRepo      *universe.IndexRepository
	instrumentRepo *universe.InstrumentRepository
	cache          CacheInvalidator
	observers      []IndexObserver
	log            zerolog.Logger
}

// NewUniverseHandlers creates a new universe handlers instance
func NewUniverseHandlers(
	indexRepo *universe.IndexRepository,
	instrumentRepo *universe.InstrumentRepository,
	cache CacheInvalidator,
	log zerolog.Logger,
	observers ...IndexObserver,
) *UniverseHandlers {
	return &UniverseHandlers{
		indexRepo:      indexRepo,
		instrumentRepo: instrumentRepo,
		cache:          cache,
		observers:      observers,
		log:            log.With().Str("handler", "universe").Logger(),
	}
}

// SaveIndexRequest is the body of PUT /api/indices/{name}
type SaveIndexRequest struct {
	Date         string                    `json:"date"`
	Constituents []domain.IndexConstituent `json:"constituents"`
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// HandleListIndices handles GET /api/indices
func (h *UniverseHandlers) HandleListIndices(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.indexRepo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list indices")
		h.writeError(w, http.StatusInternalServerError, "Failed to list indices")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": summaries, "metadata": metadata()})
}

// HandleGetIndex handles GET /api/indices/{name}
func (h *UniverseHandlers) HandleGetIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	index, err := h.indexRepo.GetIndex(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Str("index", name).Msg("Failed to get index")
		h.writeError(w, http.StatusInternalServerError, "Failed to get index")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": index, "metadata": metadata()})
}

// HandleSaveIndex handles PUT /api/indices/{name}.
// The stored composition replaces the previous one and drops it from the cache.
func (h *UniverseHandlers) HandleSaveIndex(w http.ResponseWriter, r *http.Request) {
	var req SaveIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	index := domain.TargetIndex{
		Name:         utils.NormalizeSymbol(chi.URLParam(r, "name")),
		Date:         req.Date,
		Constituents: req.Constituents,
	}
	if index.Constituents == nil {
		index.Constituents = []domain.IndexConstituent{}
	}

	if err := h.indexRepo.Save(index); err != nil {
		if errors.Is(err, domain.ErrDataInconsistency) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error().Err(err).Str("index", index.Name).Msg("Failed to save index")
		h.writeError(w, http.StatusInternalServerError, "Failed to save index")
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(index.Name); err != nil {
			h.log.Warn().Err(err).Str("index", index.Name).Msg("Failed to invalidate cached index")
		}
	}
	for _, observer := range h.observers {
		observer.IndexSaved(index)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"name":         index.Name,
			"date":         index.Date,
			"constituents": len(index.Constituents),
		},
		"metadata": metadata(),
	})
}

// HandleDeleteIndex handles DELETE /api/indices/{name}
func (h *UniverseHandlers) HandleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.indexRepo.Delete(name); err != nil {
		h.log.Error().Err(err).Str("index", name).Msg("Failed to delete index")
		h.writeError(w, http.StatusInternalServerError, "Failed to delete index")
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(name); err != nil {
			h.log.Warn().Err(err).Str("index", name).Msg("Failed to invalidate cached index")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleInvalidateIndex handles DELETE /api/indices/{name}/cache
func (h *UniverseHandlers) HandleInvalidateIndex(w http.ResponseWriter, r *http.Request) {
	name := utils.NormalizeSymbol(chi.URLParam(r, "name"))

	if err := h.cache.Invalidate(name); err != nil {
		h.log.Error().Err(err).Str("index", name).Msg("Failed to invalidate index")
		h.writeError(w, http.StatusInternalServerError, "Failed to invalidate index")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     map[string]interface{}{"invalidated": name},
		"metadata": metadata(),
	})
}

// HandleInvalidateAll handles DELETE /api/indices/cache
func (h *UniverseHandlers) HandleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.InvalidateAll(); err != nil {
		h.log.Error().Err(err).Msg("Failed to invalidate index cache")
		h.writeError(w, http.StatusInternalServerError, "Failed to invalidate index cache")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     map[string]interface{}{"invalidated": "all"},
		"metadata": metadata(),
	})
}

// HandleGetInstruments handles GET /api/instruments
func (h *UniverseHandlers) HandleGetInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.instrumentRepo.GetAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get instruments")
		h.writeError(w, http.StatusInternalServerError, "Failed to get instruments")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": instruments, "metadata": metadata()})
}

// HandleRefreshInstruments handles POST /api/instruments/refresh
func (h *UniverseHandlers) HandleRefreshInstruments(w http.ResponseWriter, r *http.Request) {
	count, err := h.instrumentRepo.Refresh(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to refresh instruments")
		h.writeError(w, http.StatusBadGateway, "Failed to refresh instruments")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     map[string]interface{}{"refreshed": count},
		"metadata": metadata(),
	})
}

// writeJSON writes a JSON response
func (h *UniverseHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *UniverseHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
