package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRefresher) RefreshTeamAsync(teamID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, teamID)
}

// storeInsights reads job state straight from storage, the way the
// insight manager's Status does.
type storeInsights struct {
	store storage.Storage
}

func (s *storeInsights) Status(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	return s.store.GetInsightJob(ctx, teamID)
}

func newTestRouter(t *testing.T) (*gin.Engine, storage.Storage, *fakeRefresher) {
	t.Helper()
	store := memory.NewMemoryStorage()
	refresher := &fakeRefresher{}
	handler := NewHandler(store, refresher, &storeInsights{store: store})
	return SetupRoutes(handler), store, refresher
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedTeam(t *testing.T, store storage.Storage, id, repo string) {
	t.Helper()
	require.NoError(t, store.SaveTeam(context.Background(), &domain.Team{
		ID: id, Name: id, RepoFullName: repo, RepoURL: "https://github.com/" + repo,
	}))
}

func TestCreateTeam(t *testing.T) {
	router, store, refresher := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/teams", map[string]interface{}{
		"name":     "payments",
		"repo_url": "https://github.com/acme/payments.git",
		"members":  []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data domain.Team `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.ID)
	assert.Equal(t, "acme/payments", resp.Data.RepoFullName)

	saved, err := store.GetTeam(context.Background(), resp.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, "payments", saved.Name)

	// Creation kicks off the first refresh in the background.
	assert.Equal(t, []string{resp.Data.ID}, refresher.calls)
}

func TestCreateTeamRejectsBadRepoURL(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, repoURL := range []string{"", "https://github.com/acme", "not a url at all/x/y/z"} {
		w := do(router, http.MethodPost, "/api/v1/teams", map[string]interface{}{
			"name":     "payments",
			"repo_url": repoURL,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "repo_url=%q", repoURL)
	}
}

func TestGetTeamNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/teams/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestGetTeamIncludesMetrics(t *testing.T) {
	router, store, _ := newTestRouter(t)
	seedTeam(t, store, "t1", "acme/payments")
	require.NoError(t, store.ReplaceTeamMetrics(context.Background(), "t1", "acme/payments",
		&domain.RepositorySnapshot{FullName: "acme/payments"},
		map[string]*domain.DORAMetrics{"30d": {Window: "30d", PerformanceTier: domain.TierHigh}}))

	w := do(router, http.MethodGet, "/api/v1/teams/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Team     domain.Team                    `json:"team"`
			Snapshot *domain.RepositorySnapshot     `json:"snapshot"`
			Metrics  map[string]*domain.DORAMetrics `json:"metrics"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.Data.Team.ID)
	require.NotNil(t, resp.Data.Snapshot)
	require.Contains(t, resp.Data.Metrics, "30d")
	assert.Equal(t, domain.TierHigh, resp.Data.Metrics["30d"].PerformanceTier)
}

func TestDeleteTeam(t *testing.T) {
	router, store, _ := newTestRouter(t)
	seedTeam(t, store, "t1", "acme/payments")

	w := do(router, http.MethodDelete, "/api/v1/teams/t1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodGet, "/api/v1/teams/t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshStatsAccepted(t *testing.T) {
	router, store, refresher := newTestRouter(t)
	seedTeam(t, store, "t1", "acme/payments")

	w := do(router, http.MethodPost, "/api/v1/teams/t1/refresh-stats", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"t1"}, refresher.calls)
}

func TestRefreshStatsUnknownTeam(t *testing.T) {
	router, _, refresher := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/teams/missing/refresh-stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, refresher.calls)
}

func TestAIReviewStatuses(t *testing.T) {
	router, store, _ := newTestRouter(t)
	seedTeam(t, store, "t1", "acme/payments")

	w := do(router, http.MethodGet, "/api/v1/ai-review", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/ai-review?teamId=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Never analyzed: 200 with not_started status.
	w = do(router, http.MethodGet, "/api/v1/ai-review?teamId=t1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(domain.InsightNotStarted))

	transition := func(from []domain.InsightStatus, job *domain.InsightJob) {
		swapped, err := store.TransitionInsightJob(context.Background(), "t1", from, job)
		require.NoError(t, err)
		require.True(t, swapped)
	}

	transition([]domain.InsightStatus{domain.InsightNotStarted},
		&domain.InsightJob{TeamID: "t1", Status: domain.InsightPending})
	w = do(router, http.MethodGet, "/api/v1/ai-review?teamId=t1", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	// A freshly-pending job still reports its zero progress to pollers.
	assert.Contains(t, w.Body.String(), `"progress":0`)

	transition([]domain.InsightStatus{domain.InsightPending},
		&domain.InsightJob{TeamID: "t1", Status: domain.InsightError, Error: "backend unreachable"})
	w = do(router, http.MethodGet, "/api/v1/ai-review?teamId=t1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "backend unreachable")

	transition([]domain.InsightStatus{domain.InsightError},
		&domain.InsightJob{TeamID: "t1", Status: domain.InsightCompleted, Progress: 100, Feedback: "## Deployment Frequency\nship"})
	w = do(router, http.MethodGet, "/api/v1/ai-review?teamId=t1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Deployment Frequency")
}

func TestFleetMetrics(t *testing.T) {
	router, store, _ := newTestRouter(t)
	seedTeam(t, store, "t1", "acme/payments")
	require.NoError(t, store.ReplaceTeamMetrics(context.Background(), "t1", "acme/payments",
		&domain.RepositorySnapshot{FullName: "acme/payments", SizeKB: 500, Languages: map[string]int{"Go": 1000}},
		map[string]*domain.DORAMetrics{"30d": {
			Window:              "30d",
			DeploymentFrequency: domain.DeploymentFrequency{TotalDeployments: 4, FrequencyPerDay: 0.13},
			PerformanceTier:     domain.TierMedium,
		}}))

	w := do(router, http.MethodGet, "/api/v1/fleet/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data domain.FleetMetrics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.TotalTeams)
	assert.Equal(t, 1, resp.Data.TeamsWithMetrics)
	assert.Equal(t, 4, resp.Data.TotalDeployments)
}

func TestFleetMetricsRejectsUnknownWindow(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/fleet/metrics?window=365d", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
