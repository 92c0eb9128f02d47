package dora

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

// Calculator derives the four DORA metrics from a raw activity window.
// It is a pure computation: no I/O, and identical input yields identical
// output.
type Calculator struct {
	classifier Classifier
}

// NewCalculator creates a calculator with the given incident classifier
func NewCalculator(classifier Classifier) *Calculator {
	return &Calculator{classifier: classifier}
}

// deployment is a release or tag, deduplicated by commit SHA
type deployment struct {
	name      string
	sha       string
	timestamp time.Time
}

// Calculate computes the DORA metrics record for one window. windowDays
// must be positive; the caller enforces that invariant.
func (c *Calculator) Calculate(w *domain.RawActivityWindow, windowDays int) *domain.DORAMetrics {
	deployments := collectDeployments(w)

	freq := domain.DeploymentFrequency{
		FrequencyPerDay:    round2(float64(len(deployments)) / float64(windowDays)),
		TotalDeployments:   len(deployments),
		AnalysisPeriodDays: windowDays,
	}

	leadTime, leadDays := c.leadTime(w, deployments)
	cfr := c.changeFailureRate(w, deployments)
	mttr := c.mttr(w)

	return &domain.DORAMetrics{
		Window:              windowLabel(windowDays),
		DeploymentFrequency: freq,
		LeadTime:            leadTime,
		ChangeFailureRate:   cfr,
		MTTR:                mttr,
		DataSummary: domain.DataSummary{
			CommitsCount:  len(w.Commits),
			ReleasesCount: len(w.Releases),
			TagsCount:     len(w.Tags),
		},
		PerformanceTier: classifyTier(freq.FrequencyPerDay, leadDays),
	}
}

// collectDeployments merges releases and tags into a deduplicated,
// deterministically ordered deployment list. A tag pointing at the same
// commit as a release counts once.
func collectDeployments(w *domain.RawActivityWindow) []deployment {
	var all []deployment
	seen := make(map[string]bool)

	for _, r := range w.Releases {
		if r.SHA != "" {
			seen[r.SHA] = true
		}
		all = append(all, deployment{name: r.TagName, sha: r.SHA, timestamp: r.PublishedAt})
	}
	for _, t := range w.Tags {
		if t.SHA != "" && seen[t.SHA] {
			continue
		}
		seen[t.SHA] = true
		all = append(all, deployment{name: t.Name, sha: t.SHA, timestamp: t.Date})
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].timestamp.Equal(all[j].timestamp) {
			return all[i].timestamp.Before(all[j].timestamp)
		}
		if all[i].sha != all[j].sha {
			return all[i].sha < all[j].sha
		}
		return all[i].name < all[j].name
	})
	return all
}

// leadTime aggregates commit-to-deployment latency. A deployment's
// associated commits are those between the previous deployment and itself;
// a deployment with no identifiable associated commit (for example a tag on
// an orphan ref) is excluded from the aggregation rather than guessed at.
// Returns nil when the window has no deployments.
func (c *Calculator) leadTime(w *domain.RawActivityWindow, deployments []deployment) (*domain.LeadTime, float64) {
	if len(deployments) == 0 {
		return nil, 0
	}

	commits := make([]domain.Commit, len(w.Commits))
	copy(commits, w.Commits)
	sort.Slice(commits, func(i, j int) bool {
		if !commits[i].Timestamp.Equal(commits[j].Timestamp) {
			return commits[i].Timestamp.Before(commits[j].Timestamp)
		}
		return commits[i].SHA < commits[j].SHA
	})

	var leads []float64
	prev := time.Time{}
	for _, d := range deployments {
		var earliest time.Time
		for _, cm := range commits {
			if cm.Timestamp.After(prev) && !cm.Timestamp.After(d.timestamp) {
				earliest = cm.Timestamp
				break
			}
		}
		if !earliest.IsZero() {
			leads = append(leads, days(d.timestamp.Sub(earliest)))
		}
		prev = d.timestamp
	}
	if len(leads) == 0 {
		return nil, 0
	}

	sort.Float64s(leads)
	sum := 0.0
	for _, l := range leads {
		sum += l
	}
	avg := sum / float64(len(leads))
	return &domain.LeadTime{
		AverageDays: round2(avg),
		MedianDays:  round2(median(leads)),
		MinDays:     round2(leads[0]),
		MaxDays:     round2(leads[len(leads)-1]),
	}, avg
}

// changeFailureRate counts deployments whose associated commits or merged
// pull requests look like bug or incident fixes. The rate is always 0 when
// there are no deployments.
func (c *Calculator) changeFailureRate(w *domain.RawActivityWindow, deployments []deployment) domain.ChangeFailureRate {
	cfr := domain.ChangeFailureRate{TotalDeployments: len(deployments)}
	if len(deployments) == 0 {
		return cfr
	}

	prev := time.Time{}
	for _, d := range deployments {
		if c.deploymentIsFix(w, prev, d.timestamp) {
			cfr.BugOrIncidentFixes++
		}
		prev = d.timestamp
	}
	cfr.FailureRate = round2(float64(cfr.BugOrIncidentFixes) / float64(len(deployments)) * 100)
	return cfr
}

func (c *Calculator) deploymentIsFix(w *domain.RawActivityWindow, after, until time.Time) bool {
	for _, cm := range w.Commits {
		if cm.Timestamp.After(after) && !cm.Timestamp.After(until) && c.classifier.IsIncident(cm.Message, nil) {
			return true
		}
	}
	for _, pr := range w.PullRequests {
		if pr.MergedAt == nil {
			continue
		}
		if pr.MergedAt.After(after) && !pr.MergedAt.After(until) && c.classifier.IsIncident(pr.Title, pr.Labels) {
			return true
		}
	}
	return false
}

// mttr measures open-to-resolution latency over incident-flagged issues and
// pull requests. Unresolved incidents are excluded from the averages but
// counted separately. Time fields are omitted when nothing was analyzed.
func (c *Calculator) mttr(w *domain.RawActivityWindow) domain.MTTR {
	var durations []float64
	unresolved := 0

	for _, is := range w.Issues {
		if !c.classifier.IsIncident(is.Title, is.Labels) {
			continue
		}
		if is.ClosedAt == nil {
			unresolved++
			continue
		}
		durations = append(durations, days(is.ClosedAt.Sub(is.CreatedAt)))
	}
	for _, pr := range w.PullRequests {
		if !c.classifier.IsIncident(pr.Title, pr.Labels) {
			continue
		}
		resolved := pr.MergedAt
		if resolved == nil {
			resolved = pr.ClosedAt
		}
		if resolved == nil {
			unresolved++
			continue
		}
		durations = append(durations, days(resolved.Sub(pr.CreatedAt)))
	}

	out := domain.MTTR{
		TotalIncidentsAnalyzed: len(durations),
		UnresolvedIncidents:    unresolved,
	}
	if len(durations) == 0 {
		return out
	}

	sort.Float64s(durations)
	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	avg := round2(sum / float64(len(durations)))
	minDays := round2(durations[0])
	maxDays := round2(durations[len(durations)-1])
	out.AverageDays = &avg
	out.MinDays = &minDays
	out.MaxDays = &maxDays
	return out
}

// classifyTier maps deployment frequency and average lead time onto the
// standard four-tier scale
func classifyTier(freqPerDay, leadDays float64) domain.PerformanceTier {
	switch {
	case freqPerDay >= 1 && leadDays <= 1:
		return domain.TierElite
	case freqPerDay >= 1.0/7 && leadDays <= 7:
		return domain.TierHigh
	case freqPerDay >= 1.0/30 && leadDays <= 30:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func windowLabel(days int) string {
	return strconv.Itoa(days) + "d"
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
