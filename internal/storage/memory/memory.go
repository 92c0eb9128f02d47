package memory

import (
	"context"
	"sync"
	"time"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	apperrors "github.com/COS301-SE-2025/devx360-metrics/internal/errors"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
)

// memoryStorage implements the Storage interface with in-process maps.
// Useful for tests and local development without a database file.
type memoryStorage struct {
	mu        sync.Mutex
	teams     map[string]*domain.Team
	snapshots map[string]*domain.RepositorySnapshot
	records   map[string]map[string]*domain.DORAMetrics
	jobs      map[string]*domain.InsightJob
}

// NewMemoryStorage creates an empty in-memory storage instance
func NewMemoryStorage() storage.Storage {
	return &memoryStorage{
		teams:     make(map[string]*domain.Team),
		snapshots: make(map[string]*domain.RepositorySnapshot),
		records:   make(map[string]map[string]*domain.DORAMetrics),
		jobs:      make(map[string]*domain.InsightJob),
	}
}

func (s *memoryStorage) SaveTeam(ctx context.Context, team *domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *team
	s.teams[team.ID] = &copied
	return nil
}

func (s *memoryStorage) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("team")
	}
	copied := *team
	return &copied, nil
}

func (s *memoryStorage) ListTeams(ctx context.Context) ([]*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Team, 0, len(s.teams))
	for _, t := range s.teams {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memoryStorage) DeleteTeam(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return apperrors.NewNotFoundError("team")
	}
	delete(s.teams, id)
	delete(s.snapshots, id)
	delete(s.records, id)
	delete(s.jobs, id)
	return nil
}

func (s *memoryStorage) ReplaceTeamMetrics(ctx context.Context, teamID, repoFullName string, snapshot *domain.RepositorySnapshot, records map[string]*domain.DORAMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok || team.RepoFullName != repoFullName {
		return storage.ErrStale
	}

	s.snapshots[teamID] = snapshot
	replaced := make(map[string]*domain.DORAMetrics, len(records))
	for window, rec := range records {
		replaced[window] = rec
	}
	s.records[teamID] = replaced
	return nil
}

func (s *memoryStorage) GetTeamMetrics(ctx context.Context, teamID string) (*domain.TeamMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, apperrors.NewNotFoundError("team")
	}
	tm := &domain.TeamMetrics{
		TeamID:   teamID,
		Snapshot: s.snapshots[teamID],
		Records:  make(map[string]*domain.DORAMetrics),
	}
	for window, rec := range s.records[teamID] {
		tm.Records[window] = rec
	}
	return tm, nil
}

func (s *memoryStorage) ListTeamMetrics(ctx context.Context) ([]*domain.TeamMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.TeamMetrics, 0, len(s.teams))
	for id := range s.teams {
		tm := &domain.TeamMetrics{
			TeamID:   id,
			Snapshot: s.snapshots[id],
			Records:  make(map[string]*domain.DORAMetrics),
		}
		for window, rec := range s.records[id] {
			tm.Records[window] = rec
		}
		out = append(out, tm)
	}
	return out, nil
}

func (s *memoryStorage) GetInsightJob(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[teamID]
	if !ok {
		return &domain.InsightJob{TeamID: teamID, Status: domain.InsightNotStarted}, nil
	}
	copied := *job
	return &copied, nil
}

func (s *memoryStorage) TransitionInsightJob(ctx context.Context, teamID string, from []domain.InsightStatus, job *domain.InsightJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := domain.InsightNotStarted
	if existing, ok := s.jobs[teamID]; ok {
		current = existing.Status
	}
	allowed := false
	for _, f := range from {
		if current == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	copied := *job
	copied.TeamID = teamID
	copied.UpdatedAt = time.Now().UTC()
	s.jobs[teamID] = &copied
	return true, nil
}

func (s *memoryStorage) UpdateInsightProgress(ctx context.Context, teamID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[teamID]
	if !ok || job.Status != domain.InsightPending {
		return nil
	}
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStorage) Migrate(ctx context.Context) error { return nil }

func (s *memoryStorage) Close() error { return nil }
