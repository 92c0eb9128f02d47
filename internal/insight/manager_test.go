package insight

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage/memory"
)

type fakeGenerator struct {
	calls atomic.Int32
	gate  chan struct{} // if set, Generate blocks until closed
	text  string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, team *domain.Team, metrics *domain.TeamMetrics) (string, error) {
	g.calls.Add(1)
	if g.gate != nil {
		<-g.gate
	}
	return g.text, g.err
}

func seedTeam(t *testing.T) (storage.Storage, string) {
	t.Helper()
	store := memory.NewMemoryStorage()
	ctx := context.Background()

	team := &domain.Team{ID: "t1", Name: "payments", RepoFullName: "acme/payments"}
	require.NoError(t, store.SaveTeam(ctx, team))
	require.NoError(t, store.ReplaceTeamMetrics(ctx, "t1", "acme/payments",
		&domain.RepositorySnapshot{FullName: "acme/payments"},
		map[string]*domain.DORAMetrics{"30d": {Window: "30d"}}))

	return store, "t1"
}

func TestTriggerCompletesJob(t *testing.T) {
	store, teamID := seedTeam(t)
	gen := &fakeGenerator{text: "## Deployment Frequency\ngood\n## Lead Time for Changes\nok"}
	mgr := NewManager(store, gen)

	job, err := mgr.Trigger(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, domain.InsightPending, job.Status)

	assert.Eventually(t, func() bool {
		j, err := mgr.Status(context.Background(), teamID)
		return err == nil && j.Status == domain.InsightCompleted
	}, 2*time.Second, 10*time.Millisecond)

	j, err := mgr.Status(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, 100, j.Progress)
	assert.Contains(t, j.Feedback, "Deployment Frequency")
	assert.Equal(t, "good", j.Sections["Deployment Frequency"])
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestTriggerIsIdempotentWhilePending(t *testing.T) {
	store, teamID := seedTeam(t)
	gen := &fakeGenerator{gate: make(chan struct{}), text: "## Deployment Frequency\nfine"}
	mgr := NewManager(store, gen)

	first, err := mgr.Trigger(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, domain.InsightPending, first.Status)

	// Wait until the background goroutine has actually started generating.
	assert.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second, err := mgr.Trigger(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, domain.InsightPending, second.Status)

	close(gen.gate)
	assert.Eventually(t, func() bool {
		j, err := mgr.Status(context.Background(), teamID)
		return err == nil && j.Status == domain.InsightCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), gen.calls.Load(), "overlapping triggers must cause exactly one generation call")
}

func TestBackendFailureRecordsError(t *testing.T) {
	store, teamID := seedTeam(t)
	gen := &fakeGenerator{err: errors.New("backend unreachable")}
	mgr := NewManager(store, gen)

	_, err := mgr.Trigger(context.Background(), teamID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		j, err := mgr.Status(context.Background(), teamID)
		return err == nil && j.Status == domain.InsightError
	}, 2*time.Second, 10*time.Millisecond)

	j, err := mgr.Status(context.Background(), teamID)
	require.NoError(t, err)
	assert.Contains(t, j.Error, "backend unreachable")
}

func TestErrorStateIsRetryable(t *testing.T) {
	store, teamID := seedTeam(t)
	gen := &fakeGenerator{err: errors.New("boom")}
	mgr := NewManager(store, gen)

	_, err := mgr.Trigger(context.Background(), teamID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		j, _ := mgr.Status(context.Background(), teamID)
		return j != nil && j.Status == domain.InsightError
	}, 2*time.Second, 10*time.Millisecond)

	// A new trigger after the failure resets the job to pending.
	gen.err = nil
	gen.text = "## Deployment Frequency\nrecovered"
	job, err := mgr.Trigger(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, domain.InsightPending, job.Status)

	assert.Eventually(t, func() bool {
		j, _ := mgr.Status(context.Background(), teamID)
		return j != nil && j.Status == domain.InsightCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatusForUnknownTeamIsNotStarted(t *testing.T) {
	store, _ := seedTeam(t)
	mgr := NewManager(store, &fakeGenerator{})

	j, err := mgr.Status(context.Background(), "never-refreshed")
	require.NoError(t, err)
	assert.Equal(t, domain.InsightNotStarted, j.Status)
}

func TestParseSections(t *testing.T) {
	text := "preamble\n## Deployment Frequency\nShip more often.\n\n## Lead Time for Changes\nShorten reviews.\n## Change Failure Rate\n## Mean Time to Recovery\nAdd alerts."

	sections := ParseSections(text)

	assert.Equal(t, "Ship more often.", sections["Deployment Frequency"])
	assert.Equal(t, "Shorten reviews.", sections["Lead Time for Changes"])
	assert.Equal(t, "", sections["Change Failure Rate"])
	assert.Equal(t, "Add alerts.", sections["Mean Time to Recovery"])
	assert.Len(t, sections, 4)
}
