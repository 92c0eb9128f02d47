package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COS301-SE-2025/devx360-metrics/internal/config"
	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	"github.com/COS301-SE-2025/devx360-metrics/internal/dora"
	"github.com/COS301-SE-2025/devx360-metrics/internal/fetcher"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage/memory"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error
	gate    chan struct{} // if set, Fetch blocks until closed
}

func (f *fakeFetcher) Fetch(ctx context.Context, fullName string, windowDays int) (*fetcher.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.failFor[fullName]; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &fetcher.Result{
		Snapshot: &domain.RepositorySnapshot{
			FullName:  fullName,
			Languages: map[string]int{"Go": 1000},
			FetchedAt: now,
		},
		Window: &domain.RawActivityWindow{
			Repo:       fullName,
			WindowDays: windowDays,
			FetchedAt:  now,
			Commits: []domain.Commit{
				{SHA: "c1", Timestamp: now.AddDate(0, 0, -2)},
			},
			Releases: []domain.Release{
				{Name: "v1.0.0", TagName: "v1.0.0", SHA: "c1", PublishedAt: now.AddDate(0, 0, -1)},
			},
		},
		Tree: []domain.TreeEntry{
			{Path: "main.go", Type: "blob"},
			{Path: "internal", Type: "tree"},
		},
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeInsights struct {
	calls atomic.Int32
}

func (f *fakeInsights) Trigger(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	f.calls.Add(1)
	return &domain.InsightJob{TeamID: teamID, Status: domain.InsightPending}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AnalysisWindowDays:     90,
		RefreshIntervalHours:   24,
		MaxConcurrentRefreshes: 2,
		TeamRefreshTimeoutMin:  1,
	}
}

func addTeam(t *testing.T, store storage.Storage, id, repo string) {
	t.Helper()
	require.NoError(t, store.SaveTeam(context.Background(), &domain.Team{
		ID: id, Name: id, RepoFullName: repo,
	}))
}

func TestRefreshTeamComputesAllWindows(t *testing.T) {
	store := memory.NewMemoryStorage()
	addTeam(t, store, "t1", "acme/api")
	insights := &fakeInsights{}
	s := NewScheduler(store, &fakeFetcher{}, dora.NewCalculator(dora.NewKeywordClassifier()), insights, testConfig())

	require.NoError(t, s.RefreshTeam(context.Background(), "t1"))

	tm, err := store.GetTeamMetrics(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, tm.Records, 3)
	for _, window := range []string{"7d", "30d", "90d"} {
		require.Contains(t, tm.Records, window)
		assert.Equal(t, 1, tm.Records[window].DeploymentFrequency.TotalDeployments)
	}
	require.NotNil(t, tm.Snapshot)
	require.NotNil(t, tm.Snapshot.Complexity)
	assert.Equal(t, 11, tm.Snapshot.Complexity.Complexity) // 10*1 language + 1 file
	assert.Equal(t, int32(1), insights.calls.Load())
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	store := memory.NewMemoryStorage()
	addTeam(t, store, "good-1", "acme/one")
	addTeam(t, store, "bad", "acme/broken")
	addTeam(t, store, "good-2", "acme/two")

	fetch := &fakeFetcher{failFor: map[string]error{
		"acme/broken": errors.New("upstream unavailable"),
	}}
	s := NewScheduler(store, fetch, dora.NewCalculator(dora.NewKeywordClassifier()), &fakeInsights{}, testConfig())

	report, err := s.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Outcomes, 3)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	for _, o := range report.Outcomes {
		if o.TeamID == "bad" {
			assert.False(t, o.Success)
			assert.Contains(t, o.Error, "upstream unavailable")
		} else {
			assert.True(t, o.Success)
			assert.Empty(t, o.Error)
		}
	}

	tm, err := store.GetTeamMetrics(context.Background(), "good-1")
	require.NoError(t, err)
	assert.NotEmpty(t, tm.Records)

	tm, err = store.GetTeamMetrics(context.Background(), "bad")
	require.NoError(t, err)
	assert.Empty(t, tm.Records, "failed refresh must not write partial metrics")
}

func TestOverlappingRefreshesCoalesce(t *testing.T) {
	store := memory.NewMemoryStorage()
	addTeam(t, store, "t1", "acme/api")

	fetch := &fakeFetcher{gate: make(chan struct{})}
	s := NewScheduler(store, fetch, dora.NewCalculator(dora.NewKeywordClassifier()), &fakeInsights{}, testConfig())

	done := make(chan error, 1)
	go func() { done <- s.RefreshTeam(context.Background(), "t1") }()

	assert.Eventually(t, func() bool { return fetch.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// While the first refresh is mid-fetch, a second request is a no-op.
	require.NoError(t, s.RefreshTeam(context.Background(), "t1"))
	assert.Equal(t, 1, fetch.callCount())

	close(fetch.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fetch.callCount())
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	store := memory.NewMemoryStorage()
	addTeam(t, store, "t1", "acme/old-repo")

	fetch := &fakeFetcher{gate: make(chan struct{})}
	s := NewScheduler(store, fetch, dora.NewCalculator(dora.NewKeywordClassifier()), &fakeInsights{}, testConfig())

	done := make(chan error, 1)
	go func() { done <- s.RefreshTeam(context.Background(), "t1") }()
	assert.Eventually(t, func() bool { return fetch.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// The team switches repositories while the fetch is in flight.
	addTeam(t, store, "t1", "acme/new-repo")
	close(fetch.gate)

	require.NoError(t, <-done, "stale results are discarded, not reported as failure")

	tm, err := store.GetTeamMetrics(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, tm.Records, "metrics for the old repository must not be persisted")
	assert.Nil(t, tm.Snapshot)
}

func TestRefreshTeamUnknownTeam(t *testing.T) {
	store := memory.NewMemoryStorage()
	s := NewScheduler(store, &fakeFetcher{}, dora.NewCalculator(dora.NewKeywordClassifier()), &fakeInsights{}, testConfig())

	err := s.RefreshTeam(context.Background(), "missing")
	assert.Error(t, err)
}
