package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/indextracker/internal/clientdata"
	"github.com/aristath/indextracker/internal/database"
	"github.com/aristath/indextracker/internal/di"
	"github.com/aristath/indextracker/internal/modules/portfolio"
	"github.com/aristath/indextracker/internal/modules/trading"
)

// SystemHandlers serves process and storage status
type SystemHandlers struct {
	container *di.Container
	jobs      *di.JobInstances
	log       zerolog.Logger

	// swappable in tests; cpu sampling blocks for the interval
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates system handlers over the container
func NewSystemHandlers(container *di.Container, jobs *di.JobInstances, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		container: container,
		jobs:      jobs,
		log:       log.With().Str("handler", "system").Logger(),
	}
	h.systemStats = h.getSystemStats
	return h
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status      string                 `json:"status"`
	CPUPercent  float64                `json:"cpu_percent"`
	MemPercent  float64                `json:"memory_percent"`
	IndexCache  portfolio.CacheStats   `json:"index_cache"`
	TradeCounts map[string]int         `json:"trade_counts"`
	Databases   []*database.Stats      `json:"databases"`
	Cleanup     *clientdata.CleanupRun `json:"cleanup,omitempty"`
	LastUpdated string                 `json:"last_updated"`
}

// HandleSystemStatus reports resource usage, cache counters and journal totals
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:      "healthy",
		CPUPercent:  cpuPercent,
		MemPercent:  memPercent,
		TradeCounts: map[string]int{},
		Databases:   h.databaseStats(),
		LastUpdated: time.Now().Format(time.RFC3339),
	}

	if h.container.IndexCache != nil {
		response.IndexCache = h.container.IndexCache.Stats()
	}

	if h.jobs != nil && h.jobs.ClientDataCleanup != nil {
		run := h.jobs.ClientDataCleanup.LastRun()
		response.Cleanup = &run
	}

	if h.container.TradeRepo != nil {
		counts, err := h.container.TradeRepo.CountByStatus()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count trades")
			response.Status = "degraded"
		}
		for _, status := range []trading.TradeStatus{trading.TradeStatusFilled, trading.TradeStatusFailed} {
			response.TradeCounts[string(status)] = counts[status]
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats reports size and page statistics for every database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases": h.databaseStats(),
	})
}

func (h *SystemHandlers) databaseStats() []*database.Stats {
	stats := make([]*database.Stats, 0, 3)
	for _, db := range h.container.Databases() {
		s, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		stats = append(stats, s)
	}
	return stats
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
