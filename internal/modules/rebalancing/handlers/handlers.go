// Package handlers provides HTTP handlers for rebalancing operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/modules/portfolio"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Orchestrator is the part of the portfolio manager the handlers drive
type Orchestrator interface {
	Plan(ctx context.Context, p domain.Portfolio, index domain.TargetIndex) (*portfolio.Plan, error)
	Portfolio(ctx context.Context, accountID string) (*domain.Portfolio, error)
	Index(ctx context.Context, name string) (*domain.TargetIndex, error)
	ExecuteActions(ctx context.Context, accountID string, actions []domain.Action) domain.ExecutionReport
	RebalanceAccount(ctx context.Context, accountID, indexName string) (*portfolio.RebalanceReport, error)
}

// Handler handles rebalancing HTTP requests
type Handler struct {
	manager      Orchestrator
	defaultIndex string
	log          zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(manager Orchestrator, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// WithDefaultIndex sets the index used by runs that name none
func (h *Handler) WithDefaultIndex(name string) *Handler {
	h.defaultIndex = utils.NormalizeSymbol(name)
	return h
}

// CalculateRequest asks for a rebalance plan. Either an inline portfolio or an
// account id must be given, and either an inline index or an index name.
type CalculateRequest struct {
	Portfolio *domain.Portfolio   `json:"portfolio,omitempty"`
	Index     *domain.TargetIndex `json:"index,omitempty"`
	AccountID string              `json:"account_id,omitempty"`
	IndexName string              `json:"index_name,omitempty"`
}

// ExecuteRequest submits previously computed actions
type ExecuteRequest struct {
	AccountID string          `json:"account_id"`
	Actions   []domain.Action `json:"actions"`
}

// RunRequest selects the index for an account rebalance
type RunRequest struct {
	IndexName string `json:"index_name"`
}

// ExecutionFailure is the wire form of a domain.ExecutionError
type ExecutionFailure struct {
	Action      domain.Action `json:"action"`
	Source      string        `json:"source"`
	Description string        `json:"description"`
}

// ExecutionResponse is the wire form of a domain.ExecutionReport
type ExecutionResponse struct {
	Succeeded []domain.Action    `json:"succeeded"`
	Failed    []ExecutionFailure `json:"failed"`
}

func toExecutionResponse(report domain.ExecutionReport) ExecutionResponse {
	resp := ExecutionResponse{
		Succeeded: report.Succeeded,
		Failed:    make([]ExecutionFailure, 0, len(report.Failed)),
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []domain.Action{}
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, ExecutionFailure{
			Action:      f.Action,
			Source:      f.Source,
			Description: f.Description,
		})
	}
	return resp
}

// HandleCalculate handles POST /api/rebalancing/calculate
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()

	snapshot := req.Portfolio
	if snapshot == nil {
		if strings.TrimSpace(req.AccountID) == "" {
			h.writeError(w, http.StatusBadRequest, "portfolio or account_id is required")
			return
		}
		p, err := h.manager.Portfolio(ctx, req.AccountID)
		if err != nil {
			h.writeDomainError(w, err, "Failed to get portfolio")
			return
		}
		snapshot = p
	}

	index := req.Index
	if index == nil {
		if strings.TrimSpace(req.IndexName) == "" {
			h.writeError(w, http.StatusBadRequest, "index or index_name is required")
			return
		}
		idx, err := h.manager.Index(ctx, req.IndexName)
		if err != nil {
			h.writeDomainError(w, err, "Failed to get index")
			return
		}
		index = idx
	}

	plan, err := h.manager.Plan(ctx, *snapshot, *index)
	if err != nil {
		h.writeDomainError(w, err, "Failed to calculate rebalance")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"actions":    plan.Actions,
			"free_cash":  plan.FreeCash,
			"projected":  plan.Projected,
			"iterations": plan.Iterations,
			"index":      index.Name,
			"index_date": index.Date,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleExecute handles POST /api/rebalancing/execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		h.writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	report := h.manager.ExecuteActions(r.Context(), req.AccountID, req.Actions)

	// Partial failures are reported in the body, not as an HTTP error
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": toExecutionResponse(report),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRun handles POST /api/rebalancing/accounts/{accountID}/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.IndexName == "" {
		req.IndexName = r.URL.Query().Get("index")
	}
	if req.IndexName == "" {
		req.IndexName = h.defaultIndex
	}
	if strings.TrimSpace(req.IndexName) == "" {
		h.writeError(w, http.StatusBadRequest, "index_name is required")
		return
	}

	report, err := h.manager.RebalanceAccount(r.Context(), accountID, req.IndexName)
	if err != nil {
		h.writeDomainError(w, err, "Failed to rebalance account")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"account_id":          report.AccountID,
			"index":               report.IndexName,
			"index_date":          report.IndexDate,
			"free_cash":           report.FreeCash,
			"skipped":             report.Skipped,
			"skip_reason":         report.SkipReason,
			"actions":             report.Actions,
			"projected_free_cash": report.ProjectedFreeCash,
			"execution":           toExecutionResponse(report.Execution),
			"started_at":          report.StartedAt.Format(time.RFC3339),
			"finished_at":         report.FinishedAt.Format(time.RFC3339),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDataInconsistency):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	} else {
		h.log.Warn().Err(err).Msg(msg)
	}
	h.writeError(w, status, msg+": "+err.Error())
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
