package generation_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/store"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/google/uuid"
)

// memStore is an in-memory store.Store with the same transition rules as
// the Postgres implementation.
type memStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]models.Job
	createErr error
	statuses  map[uuid.UUID][]string
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]models.Job), statuses: make(map[uuid.UUID][]string)}
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) CreateJob(_ context.Context, job *models.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.jobs[job.ID] = *job
	s.statuses[job.ID] = []string{job.Status}
	return nil
}

func (s *memStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (s *memStore) UpdateJob(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(store.AllowedFrom(status), j.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, j.Status, status)
	}

	u := store.NewJobUpdate(opts...)
	if status == models.JobStatusDone {
		u.Progress = ptr(100)
	}
	if j.Status != status {
		s.statuses[id] = append(s.statuses[id], status)
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.Progress != nil && *u.Progress > j.ProgressPercent {
		j.ProgressPercent = *u.Progress
	}
	if u.Result != nil {
		j.Result = u.Result
	}
	if u.ModelUsed != nil {
		j.ModelUsed = u.ModelUsed
	}
	if u.ErrorDetail != nil {
		j.ErrorDetail = u.ErrorDetail
	}
	s.jobs[id] = j
	return &j, nil
}

func (s *memStore) FailStaleJobs(_ context.Context, before time.Time, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		if models.IsTerminalStatus(j.Status) || !j.UpdatedAt.Before(before) {
			continue
		}
		j.Status = models.JobStatusError
		j.Message = message
		j.ErrorDetail = &message
		j.UpdatedAt = time.Now().UTC()
		s.jobs[id] = j
		s.statuses[id] = append(s.statuses[id], models.JobStatusError)
		n++
	}
	return n, nil
}

// put stores a job directly, bypassing the service.
func (s *memStore) put(j models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	s.statuses[j.ID] = []string{j.Status}
}

func (s *memStore) history(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.statuses[id])
}

func ptr[T any](v T) *T { return &v }

var _ store.Store = (*memStore)(nil)
