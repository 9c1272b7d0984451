package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmarchal/banklink/internal/jobs"
)

// Store is an in-memory implementation of JobStore. It stores job snapshots
// in memory and is safe for concurrent use. Data is lost on service restart.
type Store struct {
	mu      sync.RWMutex
	records map[string]*jobs.JobRecord
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*jobs.JobRecord),
	}
}

// SaveJob implements the JobStore interface. It snapshots the job's
// bookkeeping, overwriting any previous snapshot.
func (s *Store) SaveJob(ctx context.Context, job jobs.Job) error {
	meta := job.Bookkeeping()
	if meta.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[meta.JobID] = &jobs.JobRecord{
		JobID:       meta.JobID,
		Type:        job.GetType(),
		Status:      meta.Status,
		CreatedAt:   meta.CreatedAt,
		StartedAt:   meta.StartedAt,
		CompletedAt: meta.CompletedAt,
		Error:       meta.Error,
		RetryCount:  meta.RetryCount,
	}
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	recordCopy := *record
	return &recordCopy, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.JobRecord
	for _, record := range s.records {
		if filter.Type != "" && record.Type != filter.Type {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.JobRecord{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.JobStore = (*Store)(nil)
