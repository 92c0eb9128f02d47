package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	apperrors "github.com/COS301-SE-2025/devx360-metrics/internal/errors"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connURL string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		members JSONB NOT NULL DEFAULT '[]',
		repo_url TEXT NOT NULL,
		repo_full_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS team_snapshots (
		team_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS team_metrics (
		team_id TEXT NOT NULL,
		window TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (team_id, window)
	);

	CREATE INDEX IF NOT EXISTS idx_team_metrics_team ON team_metrics(team_id);

	CREATE TABLE IF NOT EXISTS insight_jobs (
		team_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		sections JSONB NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *postgresStorage) SaveTeam(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, members, repo_url, repo_full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			members = EXCLUDED.members,
			repo_url = EXCLUDED.repo_url,
			repo_full_name = EXCLUDED.repo_full_name,
			updated_at = EXCLUDED.updated_at
	`, team.ID, team.Name, string(members), team.RepoURL, team.RepoFullName, team.CreatedAt, team.UpdatedAt)
	return err
}

func (s *postgresStorage) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, members, repo_url, repo_full_name, created_at, updated_at
		FROM teams WHERE id = $1
	`, id)
	return scanTeam(row)
}

func (s *postgresStorage) ListTeams(ctx context.Context) ([]*domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, members, repo_url, repo_full_name, created_at, updated_at
		FROM teams ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*domain.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTeam(row rowScanner) (*domain.Team, error) {
	var team domain.Team
	var members []byte
	err := row.Scan(&team.ID, &team.Name, &members, &team.RepoURL, &team.RepoFullName, &team.CreatedAt, &team.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("team")
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &team.Members); err != nil {
		return nil, fmt.Errorf("failed to decode team members: %w", err)
	}
	return &team, nil
}

func (s *postgresStorage) DeleteTeam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFoundError("team")
	}
	for _, table := range []string{"team_snapshots", "team_metrics", "insight_jobs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE team_id = $1`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceTeamMetrics writes the snapshot and all records in one
// transaction, guarded by a freshness check against the team's current
// repository reference.
func (s *postgresStorage) ReplaceTeamMetrics(ctx context.Context, teamID, repoFullName string, snapshot *domain.RepositorySnapshot, records map[string]*domain.DORAMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT repo_full_name FROM teams WHERE id = $1 FOR UPDATE`, teamID).Scan(&current)
	if err == sql.ErrNoRows || (err == nil && current != repoFullName) {
		return storage.ErrStale
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_snapshots (team_id, payload, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (team_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, teamID, string(snapJSON), now)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_metrics WHERE team_id = $1`, teamID); err != nil {
		return err
	}
	for window, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO team_metrics (team_id, window, payload, updated_at) VALUES ($1, $2, $3, $4)
		`, teamID, window, string(payload), now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStorage) GetTeamMetrics(ctx context.Context, teamID string) (*domain.TeamMetrics, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}

	tm := &domain.TeamMetrics{TeamID: teamID, Records: make(map[string]*domain.DORAMetrics)}

	var snapJSON []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM team_snapshots WHERE team_id = $1`, teamID).Scan(&snapJSON)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		var snapshot domain.RepositorySnapshot
		if err := json.Unmarshal(snapJSON, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		tm.Snapshot = &snapshot
	}

	rows, err := s.db.QueryContext(ctx, `SELECT window, payload FROM team_metrics WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var window string
		var payload []byte
		if err := rows.Scan(&window, &payload); err != nil {
			return nil, err
		}
		var rec domain.DORAMetrics
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode metrics record: %w", err)
		}
		tm.Records[window] = &rec
	}
	return tm, rows.Err()
}

func (s *postgresStorage) ListTeamMetrics(ctx context.Context) ([]*domain.TeamMetrics, error) {
	teams, err := s.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.TeamMetrics, 0, len(teams))
	for _, team := range teams {
		tm, err := s.GetTeamMetrics(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, tm)
	}
	return out, nil
}

func (s *postgresStorage) GetInsightJob(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, progress, feedback, sections, error, updated_at
		FROM insight_jobs WHERE team_id = $1
	`, teamID)

	job := &domain.InsightJob{TeamID: teamID}
	var sections []byte
	err := row.Scan(&job.Status, &job.Progress, &job.Feedback, &sections, &job.Error, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return &domain.InsightJob{TeamID: teamID, Status: domain.InsightNotStarted}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &job.Sections); err != nil {
		return nil, fmt.Errorf("failed to decode insight sections: %w", err)
	}
	return job, nil
}

func (s *postgresStorage) TransitionInsightJob(ctx context.Context, teamID string, from []domain.InsightStatus, job *domain.InsightJob) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	current := domain.InsightNotStarted
	err = tx.QueryRowContext(ctx, `SELECT status FROM insight_jobs WHERE team_id = $1 FOR UPDATE`, teamID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if !statusIn(current, from) {
		return false, nil
	}

	sections := []byte("{}")
	if job.Sections != nil {
		if sections, err = json.Marshal(job.Sections); err != nil {
			return false, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO insight_jobs (team_id, status, progress, feedback, sections, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (team_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			feedback = EXCLUDED.feedback,
			sections = EXCLUDED.sections,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`, teamID, string(job.Status), job.Progress, job.Feedback, string(sections), job.Error, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *postgresStorage) UpdateInsightProgress(ctx context.Context, teamID string, progress int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insight_jobs SET progress = $1, updated_at = $2 WHERE team_id = $3 AND status = $4
	`, progress, time.Now().UTC(), teamID, string(domain.InsightPending))
	return err
}

func (s *postgresStorage) Close() error {
	return s.db.Close()
}

func statusIn(status domain.InsightStatus, set []domain.InsightStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}
