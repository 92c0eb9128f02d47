package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/COS301-SE-2025/devx360-metrics/internal/complexity"
	"github.com/COS301-SE-2025/devx360-metrics/internal/config"
	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	"github.com/COS301-SE-2025/devx360-metrics/internal/dora"
	"github.com/COS301-SE-2025/devx360-metrics/internal/fetcher"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
)

// standardWindows are the analysis periods derived from a single fetch of
// the longest window.
var standardWindows = []int{7, 30, 90}

// InsightTrigger starts narrative generation once fresh metrics land.
type InsightTrigger interface {
	Trigger(ctx context.Context, teamID string) (*domain.InsightJob, error)
}

// Scheduler drives periodic and on-demand team refreshes. Concurrency is
// bounded by a semaphore; overlapping refreshes of the same team coalesce
// into one.
type Scheduler struct {
	store       storage.Storage
	fetch       fetcher.Fetcher
	calc        *dora.Calculator
	insights    InsightTrigger
	windowDays  int
	interval    time.Duration
	teamTimeout time.Duration
	sem         chan struct{}

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewScheduler creates a scheduler wired to the given pipeline stages
func NewScheduler(store storage.Storage, fetch fetcher.Fetcher, calc *dora.Calculator, insights InsightTrigger, cfg *config.Config) *Scheduler {
	return &Scheduler{
		store:       store,
		fetch:       fetch,
		calc:        calc,
		insights:    insights,
		windowDays:  cfg.AnalysisWindowDays,
		interval:    time.Duration(cfg.RefreshIntervalHours) * time.Hour,
		teamTimeout: time.Duration(cfg.TeamRefreshTimeoutMin) * time.Minute,
		sem:         make(chan struct{}, cfg.MaxConcurrentRefreshes),
		inFlight:    make(map[string]bool),
	}
}

// Run refreshes the whole fleet immediately and then on every interval
// tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.RefreshAll(ctx)
		if err != nil {
			log.Printf("scheduled refresh failed: %v", err)
		} else {
			log.Printf("refresh run %s finished: %d succeeded, %d failed",
				report.RunID, report.Succeeded, report.Failed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RefreshAll refreshes every registered team. One team's failure never
// aborts the run; each team reports its own outcome.
func (s *Scheduler) RefreshAll(ctx context.Context) (*domain.RunReport, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]domain.TeamOutcome, len(teams)),
	}

	var wg sync.WaitGroup
	for i, team := range teams {
		wg.Add(1)
		go func(i int, team *domain.Team) {
			defer wg.Done()
			outcome := domain.TeamOutcome{TeamID: team.ID, Success: true}
			if err := s.refreshOne(ctx, team); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
				log.Printf("refresh failed for team %s: %v", team.ID, err)
			}
			report.Outcomes[i] = outcome
		}(i, team)
	}
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	for _, o := range report.Outcomes {
		if o.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// RefreshTeam refreshes a single team synchronously
func (s *Scheduler) RefreshTeam(ctx context.Context, teamID string) error {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	return s.refreshOne(ctx, team)
}

// RefreshTeamAsync starts a background refresh and returns immediately.
// Used by the API's accept-then-process endpoint.
func (s *Scheduler) RefreshTeamAsync(teamID string) {
	go func() {
		if err := s.RefreshTeam(context.Background(), teamID); err != nil {
			log.Printf("background refresh failed for team %s: %v", teamID, err)
		}
	}()
}

// refreshOne runs the full pipeline for one team: fetch the longest
// window, derive every analysis period from it, persist atomically, then
// kick off narrative generation.
func (s *Scheduler) refreshOne(ctx context.Context, team *domain.Team) error {
	s.mu.Lock()
	if s.inFlight[team.ID] {
		s.mu.Unlock()
		log.Printf("refresh already in flight for team %s, coalescing", team.ID)
		return nil
	}
	s.inFlight[team.ID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, team.ID)
		s.mu.Unlock()
	}()

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx, cancel := context.WithTimeout(ctx, s.teamTimeout)
	defer cancel()

	res, err := s.fetch.Fetch(ctx, team.RepoFullName, s.windowDays)
	if err != nil {
		return err
	}

	if res.Snapshot != nil {
		res.Snapshot.Complexity = complexity.Analyze(res.Snapshot.Languages, res.Tree)
	}

	records := make(map[string]*domain.DORAMetrics)
	for _, days := range standardWindows {
		if days > s.windowDays {
			continue
		}
		rec := s.calc.Calculate(res.Window.Truncate(days), days)
		records[rec.Window] = rec
	}

	err = s.store.ReplaceTeamMetrics(ctx, team.ID, team.RepoFullName, res.Snapshot, records)
	if errors.Is(err, storage.ErrStale) {
		log.Printf("discarding stale refresh results for team %s: repository changed mid-flight", team.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if s.insights != nil {
		if _, err := s.insights.Trigger(ctx, team.ID); err != nil {
			log.Printf("failed to trigger insight job for team %s: %v", team.ID, err)
		}
	}
	return nil
}
