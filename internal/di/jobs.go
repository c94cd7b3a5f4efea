package di

import (
	"github.com/aristath/indextracker/internal/clientdata"
	"github.com/rs/zerolog"
)

// JobInstances holds the maintenance jobs
type JobInstances struct {
	ClientDataCleanup *clientdata.CleanupJob
}

// RegisterJobs creates the maintenance jobs and runs the startup ones once.
// There is no scheduler: jobs run at startup or on demand.
func RegisterJobs(container *Container, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
	}

	if err := jobs.ClientDataCleanup.Run(); err != nil {
		log.Warn().Err(err).Str("job", jobs.ClientDataCleanup.Name()).Msg("Startup job failed")
	}

	log.Info().Msg("Jobs registered")
	return jobs, nil
}
