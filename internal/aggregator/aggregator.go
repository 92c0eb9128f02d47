package aggregator

import (
	"math"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

// Size bucket thresholds in repository kilobytes
const (
	smallRepoKB  = 1000
	mediumRepoKB = 10000
)

// Aggregate reduces all teams' current metrics records for one window into
// fleet-wide totals and distributions. It is a pure function: deterministic
// given identical input, and an empty team list yields zeroed totals rather
// than an error.
func Aggregate(teams []*domain.TeamMetrics, window string) *domain.FleetMetrics {
	fleet := &domain.FleetMetrics{
		Window:               window,
		TotalTeams:           len(teams),
		LanguageDistribution: make(map[string]int64),
		SizeDistribution:     make(map[string]int),
		TierDistribution:     make(map[domain.PerformanceTier]int),
	}

	var freqSum, leadSum, failSum, mttrSum float64
	leadCount, mttrCount := 0, 0

	for _, tm := range teams {
		if tm.Snapshot != nil {
			for lang, bytes := range tm.Snapshot.Languages {
				fleet.LanguageDistribution[lang] += int64(bytes)
			}
			fleet.SizeDistribution[sizeBucket(tm.Snapshot.SizeKB)]++
		}

		rec, ok := tm.Records[window]
		if !ok || rec == nil {
			continue
		}
		fleet.TeamsWithMetrics++
		fleet.TotalDeployments += rec.DeploymentFrequency.TotalDeployments
		freqSum += rec.DeploymentFrequency.FrequencyPerDay
		failSum += rec.ChangeFailureRate.FailureRate
		fleet.TierDistribution[rec.PerformanceTier]++

		if rec.LeadTime != nil {
			leadSum += rec.LeadTime.AverageDays
			leadCount++
		}
		if rec.MTTR.AverageDays != nil {
			mttrSum += *rec.MTTR.AverageDays
			mttrCount++
		}
	}

	if fleet.TeamsWithMetrics > 0 {
		fleet.AvgDeploymentFrequency = round2(freqSum / float64(fleet.TeamsWithMetrics))
		fleet.AvgFailureRate = round2(failSum / float64(fleet.TeamsWithMetrics))
	}
	if leadCount > 0 {
		fleet.AvgLeadTimeDays = round2(leadSum / float64(leadCount))
	}
	if mttrCount > 0 {
		fleet.AvgMTTRDays = round2(mttrSum / float64(mttrCount))
	}
	return fleet
}

func sizeBucket(sizeKB int) string {
	switch {
	case sizeKB < smallRepoKB:
		return "small"
	case sizeKB < mediumRepoKB:
		return "medium"
	default:
		return "large"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
