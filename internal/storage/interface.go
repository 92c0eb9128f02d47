package storage

import (
	"context"
	"errors"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

// ErrStale is returned by ReplaceTeamMetrics when the team was deleted or
// re-pointed at a different repository while the refresh was in flight.
// The computed results must be discarded, not written.
var ErrStale = errors.New("team repository changed during refresh")

// Storage is the abstract interface for the persistence layer. Snapshot and
// metrics writes are whole-record replacements keyed by team ID; insight
// job transitions are atomic compare-and-swap operations.
type Storage interface {
	// Team operations
	SaveTeam(ctx context.Context, team *domain.Team) error
	GetTeam(ctx context.Context, id string) (*domain.Team, error)
	ListTeams(ctx context.Context) ([]*domain.Team, error)
	DeleteTeam(ctx context.Context, id string) error

	// ReplaceTeamMetrics atomically replaces the team's snapshot and all its
	// metrics records. repoFullName is the repository the results were
	// computed from; the write fails with ErrStale if the team no longer
	// references it.
	ReplaceTeamMetrics(ctx context.Context, teamID, repoFullName string, snapshot *domain.RepositorySnapshot, records map[string]*domain.DORAMetrics) error

	// GetTeamMetrics returns the team's latest snapshot and records. A team
	// that has never completed a refresh returns empty records, not an error.
	GetTeamMetrics(ctx context.Context, teamID string) (*domain.TeamMetrics, error)

	// ListTeamMetrics returns current metrics for every team
	ListTeamMetrics(ctx context.Context) ([]*domain.TeamMetrics, error)

	// Insight job operations
	GetInsightJob(ctx context.Context, teamID string) (*domain.InsightJob, error)

	// TransitionInsightJob writes job only if the current status is one of
	// from (a missing row counts as not_started). It reports whether the
	// swap happened.
	TransitionInsightJob(ctx context.Context, teamID string, from []domain.InsightStatus, job *domain.InsightJob) (bool, error)

	// UpdateInsightProgress bumps the progress of a pending job
	UpdateInsightProgress(ctx context.Context, teamID string, progress int) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
