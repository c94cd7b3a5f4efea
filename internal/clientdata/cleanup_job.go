package clientdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob drops expired index snapshots and any other expired client data.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger

	mu      sync.Mutex
	lastRun CleanupRun
}

// CleanupRun describes the most recent completed cleanup
type CleanupRun struct {
	FinishedAt time.Time        `json:"finished_at"`
	Removed    map[string]int64 `json:"removed"`
}

// NewCleanupJob creates a new client data cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run deletes every expired row and records what was removed.
func (j *CleanupJob) Run() error {
	removed, err := j.repo.DeleteAllExpired()
	if err != nil {
		return fmt.Errorf("failed to delete expired client data: %w", err)
	}

	var total int64
	for _, table := range AllTables {
		total += removed[table]
	}

	j.mu.Lock()
	j.lastRun = CleanupRun{FinishedAt: j.repo.now(), Removed: removed}
	j.mu.Unlock()

	if total > 0 {
		j.log.Info().
			Int64("removed", total).
			Int64("index_snapshots", removed[TableIndexSnapshots]).
			Msg("Expired client data removed")
	}

	return nil
}

// LastRun returns the outcome of the last successful run. FinishedAt is zero
// when the job has not completed yet.
func (j *CleanupJob) LastRun() CleanupRun {
	j.mu.Lock()
	defer j.mu.Unlock()

	run := j.lastRun
	if run.Removed != nil {
		removed := make(map[string]int64, len(run.Removed))
		for table, n := range run.Removed {
			removed[table] = n
		}
		run.Removed = removed
	}
	return run
}

// Name returns the job name for logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
