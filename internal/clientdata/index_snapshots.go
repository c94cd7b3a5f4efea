package clientdata

import (
	"fmt"
	"time"

	"github.com/aristath/indextracker/internal/domain"
)

// IndexSnapshots stores TargetIndex snapshots in the index_snapshots table.
type IndexSnapshots struct {
	repo *Repository
}

// NewIndexSnapshots creates a snapshot store on top of a repository.
func NewIndexSnapshots(repo *Repository) *IndexSnapshots {
	return &IndexSnapshots{repo: repo}
}

// Load returns the fresh snapshot for an index name, or nil when absent or expired.
func (s *IndexSnapshots) Load(name string) (*domain.TargetIndex, error) {
	var index domain.TargetIndex
	found, err := s.repo.GetIfFresh(TableIndexSnapshots, name, &index)
	if err != nil {
		return nil, fmt.Errorf("failed to load index snapshot %s: %w", name, err)
	}
	if !found {
		return nil, nil
	}
	return &index, nil
}

// LoadStale returns the snapshot for an index name even when it has expired.
// It serves as a fallback while the index source is unavailable; expired rows
// live until the cleanup job removes them.
func (s *IndexSnapshots) LoadStale(name string) (*domain.TargetIndex, error) {
	var index domain.TargetIndex
	found, err := s.repo.Get(TableIndexSnapshots, name, &index)
	if err != nil {
		return nil, fmt.Errorf("failed to load stale index snapshot %s: %w", name, err)
	}
	if !found {
		return nil, nil
	}
	return &index, nil
}

// Save stores a snapshot that expires at the given time.
func (s *IndexSnapshots) Save(index domain.TargetIndex, expiresAt time.Time) error {
	if err := s.repo.StoreUntil(TableIndexSnapshots, index.Name, index, expiresAt); err != nil {
		return fmt.Errorf("failed to save index snapshot %s: %w", index.Name, err)
	}
	return nil
}

// Remove deletes the snapshot of one index.
func (s *IndexSnapshots) Remove(name string) error {
	return s.repo.Delete(TableIndexSnapshots, name)
}

// RemoveAll deletes every snapshot.
func (s *IndexSnapshots) RemoveAll() error {
	return s.repo.Clear(TableIndexSnapshots)
}
