package insight

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
)

// Manager drives the asynchronous narrative-analysis lifecycle for teams.
// State machine: not_started -> pending -> completed | error; the terminal
// states reset to pending only on the next explicit trigger after a
// refresh. All transitions go through the storage layer's compare-and-swap
// so concurrent triggers cannot double-start a job.
type Manager struct {
	store      storage.Storage
	generator  Generator
	jobTimeout time.Duration
}

// NewManager creates an insight job manager
func NewManager(store storage.Storage, generator Generator) *Manager {
	return &Manager{
		store:      store,
		generator:  generator,
		jobTimeout: 5 * time.Minute,
	}
}

// Trigger starts narrative generation for a team. If a job is already
// pending the existing job is returned and no second generation call is
// made.
func (m *Manager) Trigger(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	pending := &domain.InsightJob{
		TeamID:   teamID,
		Status:   domain.InsightPending,
		Progress: 0,
	}
	swapped, err := m.store.TransitionInsightJob(ctx, teamID,
		[]domain.InsightStatus{domain.InsightNotStarted, domain.InsightCompleted, domain.InsightError},
		pending)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// A job is already pending; return it untouched.
		return m.store.GetInsightJob(ctx, teamID)
	}

	go m.run(teamID)
	return pending, nil
}

// Status returns the team's current job. Teams that never had a refresh
// report not_started.
func (m *Manager) Status(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	return m.store.GetInsightJob(ctx, teamID)
}

// run performs the generation in the background, detached from the
// caller's request context so polling clients see progress rather than a
// cancelled job.
func (m *Manager) run(teamID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.jobTimeout)
	defer cancel()

	_ = m.store.UpdateInsightProgress(ctx, teamID, 10)

	team, err := m.store.GetTeam(ctx, teamID)
	if err != nil {
		m.fail(ctx, teamID, "team no longer exists")
		return
	}
	metrics, err := m.store.GetTeamMetrics(ctx, teamID)
	if err != nil || len(metrics.Records) == 0 {
		m.fail(ctx, teamID, "no metrics available for analysis")
		return
	}

	_ = m.store.UpdateInsightProgress(ctx, teamID, 40)

	text, err := m.generator.Generate(ctx, team, metrics)
	if err != nil {
		log.Printf("insight generation failed for team %s: %v", teamID, err)
		m.fail(ctx, teamID, err.Error())
		return
	}

	_ = m.store.UpdateInsightProgress(ctx, teamID, 90)

	completed := &domain.InsightJob{
		TeamID:   teamID,
		Status:   domain.InsightCompleted,
		Progress: 100,
		Feedback: text,
		Sections: ParseSections(text),
	}
	if _, err := m.store.TransitionInsightJob(ctx, teamID,
		[]domain.InsightStatus{domain.InsightPending}, completed); err != nil {
		log.Printf("failed to complete insight job for team %s: %v", teamID, err)
	}
}

// fail moves a pending job to the error state. The job never silently
// drops back to not_started: that state is reserved for teams that have
// never had a refresh.
func (m *Manager) fail(ctx context.Context, teamID, message string) {
	failed := &domain.InsightJob{
		TeamID: teamID,
		Status: domain.InsightError,
		Error:  message,
	}
	if _, err := m.store.TransitionInsightJob(ctx, teamID,
		[]domain.InsightStatus{domain.InsightPending}, failed); err != nil {
		log.Printf("failed to record insight error for team %s: %v", teamID, err)
	}
}

// ParseSections splits generated markdown into its labeled sections. Text
// before the first heading is ignored; section keys keep the heading text
// without the leading hashes.
func ParseSections(text string) map[string]string {
	sections := make(map[string]string)
	var current string
	var body []string

	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}
