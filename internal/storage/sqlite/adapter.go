package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	apperrors "github.com/COS301-SE-2025/devx360-metrics/internal/errors"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		members TEXT NOT NULL DEFAULT '[]',
		repo_url TEXT NOT NULL,
		repo_full_name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS team_snapshots (
		team_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS team_metrics (
		team_id TEXT NOT NULL,
		window TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (team_id, window)
	);

	CREATE INDEX IF NOT EXISTS idx_team_metrics_team ON team_metrics(team_id);

	CREATE TABLE IF NOT EXISTS insight_jobs (
		team_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		sections TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStorage) SaveTeam(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, members, repo_url, repo_full_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			members = excluded.members,
			repo_url = excluded.repo_url,
			repo_full_name = excluded.repo_full_name,
			updated_at = excluded.updated_at
	`, team.ID, team.Name, string(members), team.RepoURL, team.RepoFullName, team.CreatedAt, team.UpdatedAt)
	return err
}

func (s *sqliteStorage) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, members, repo_url, repo_full_name, created_at, updated_at
		FROM teams WHERE id = ?
	`, id)
	return scanTeam(row)
}

func (s *sqliteStorage) ListTeams(ctx context.Context) ([]*domain.Team, error) {
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
	var members string
	err := row.Scan(&team.ID, &team.Name, &members, &team.RepoURL, &team.RepoFullName, &team.CreatedAt, &team.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("team")
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &team.Members); err != nil {
		return nil, fmt.Errorf("failed to decode team members: %w", err)
	}
	return &team, nil
}

func (s *sqliteStorage) DeleteTeam(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE team_id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceTeamMetrics writes the snapshot and all records in one
// transaction, guarded by a freshness check against the team's current
// repository reference.
func (s *sqliteStorage) ReplaceTeamMetrics(ctx context.Context, teamID, repoFullName string, snapshot *domain.RepositorySnapshot, records map[string]*domain.DORAMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT repo_full_name FROM teams WHERE id = ?`, teamID).Scan(&current)
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
		INSERT INTO team_snapshots (team_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, teamID, string(snapJSON), now)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_metrics WHERE team_id = ?`, teamID); err != nil {
		return err
	}
	for window, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO team_metrics (team_id, window, payload, updated_at) VALUES (?, ?, ?, ?)
		`, teamID, window, string(payload), now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStorage) GetTeamMetrics(ctx context.Context, teamID string) (*domain.TeamMetrics, error) {
	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}

	tm := &domain.TeamMetrics{TeamID: teamID, Records: make(map[string]*domain.DORAMetrics)}

	var snapJSON string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM team_snapshots WHERE team_id = ?`, teamID).Scan(&snapJSON)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		var snapshot domain.RepositorySnapshot
		if err := json.Unmarshal([]byte(snapJSON), &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		tm.Snapshot = &snapshot
	}

	rows, err := s.db.QueryContext(ctx, `SELECT window, payload FROM team_metrics WHERE team_id = ?`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var window, payload string
		if err := rows.Scan(&window, &payload); err != nil {
			return nil, err
		}
		var rec domain.DORAMetrics
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode metrics record: %w", err)
		}
		tm.Records[window] = &rec
	}
	return tm, rows.Err()
}

func (s *sqliteStorage) ListTeamMetrics(ctx context.Context) ([]*domain.TeamMetrics, error) {
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

func (s *sqliteStorage) GetInsightJob(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, progress, feedback, sections, error, updated_at
		FROM insight_jobs WHERE team_id = ?
	`, teamID)

	job := &domain.InsightJob{TeamID: teamID}
	var sections string
	err := row.Scan(&job.Status, &job.Progress, &job.Feedback, &sections, &job.Error, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return &domain.InsightJob{TeamID: teamID, Status: domain.InsightNotStarted}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sections), &job.Sections); err != nil {
		return nil, fmt.Errorf("failed to decode insight sections: %w", err)
	}
	return job, nil
}

func (s *sqliteStorage) TransitionInsightJob(ctx context.Context, teamID string, from []domain.InsightStatus, job *domain.InsightJob) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	current := domain.InsightNotStarted
	err = tx.QueryRowContext(ctx, `SELECT status FROM insight_jobs WHERE team_id = ?`, teamID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if !statusIn(current, from) {
		return false, nil
	}

	sections, err := json.Marshal(job.Sections)
	if err != nil {
		return false, err
	}
	if job.Sections == nil {
		sections = []byte("{}")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO insight_jobs (team_id, status, progress, feedback, sections, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			feedback = excluded.feedback,
			sections = excluded.sections,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, teamID, string(job.Status), job.Progress, job.Feedback, string(sections), job.Error, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *sqliteStorage) UpdateInsightProgress(ctx context.Context, teamID string, progress int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insight_jobs SET progress = ?, updated_at = ? WHERE team_id = ? AND status = ?
	`, progress, time.Now().UTC(), teamID, string(domain.InsightPending))
	return err
}

func (s *sqliteStorage) Close() error {
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
