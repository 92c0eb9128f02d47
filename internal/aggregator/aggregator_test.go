package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

func TestAggregateEmptyFleet(t *testing.T) {
	fleet := Aggregate(nil, "30d")

	assert.Equal(t, 0, fleet.TotalTeams)
	assert.Equal(t, 0, fleet.TeamsWithMetrics)
	assert.Equal(t, 0.0, fleet.AvgDeploymentFrequency)
	assert.Empty(t, fleet.LanguageDistribution)
	assert.Empty(t, fleet.SizeDistribution)
}

func TestAggregateFleet(t *testing.T) {
	avg := func(v float64) *float64 { return &v }
	teams := []*domain.TeamMetrics{
		{
			TeamID: "t1",
			Snapshot: &domain.RepositorySnapshot{
				SizeKB:    500,
				Languages: map[string]int{"Go": 1000, "Shell": 50},
			},
			Records: map[string]*domain.DORAMetrics{
				"30d": {
					Window:              "30d",
					DeploymentFrequency: domain.DeploymentFrequency{FrequencyPerDay: 0.5, TotalDeployments: 15},
					LeadTime:            &domain.LeadTime{AverageDays: 2},
					ChangeFailureRate:   domain.ChangeFailureRate{FailureRate: 10},
					MTTR:                domain.MTTR{AverageDays: avg(1.5), TotalIncidentsAnalyzed: 2},
					PerformanceTier:     domain.TierHigh,
				},
			},
		},
		{
			TeamID: "t2",
			Snapshot: &domain.RepositorySnapshot{
				SizeKB:    20000,
				Languages: map[string]int{"Go": 3000},
			},
			Records: map[string]*domain.DORAMetrics{
				"30d": {
					Window:              "30d",
					DeploymentFrequency: domain.DeploymentFrequency{FrequencyPerDay: 0.1, TotalDeployments: 3},
					ChangeFailureRate:   domain.ChangeFailureRate{FailureRate: 0},
					PerformanceTier:     domain.TierMedium,
				},
			},
		},
		{
			// Team with a snapshot but no metrics yet.
			TeamID:   "t3",
			Snapshot: &domain.RepositorySnapshot{SizeKB: 2000},
			Records:  map[string]*domain.DORAMetrics{},
		},
	}

	fleet := Aggregate(teams, "30d")

	assert.Equal(t, 3, fleet.TotalTeams)
	assert.Equal(t, 2, fleet.TeamsWithMetrics)
	assert.Equal(t, 18, fleet.TotalDeployments)
	assert.Equal(t, 0.3, fleet.AvgDeploymentFrequency)
	assert.Equal(t, 2.0, fleet.AvgLeadTimeDays, "teams without lead time stay out of that average")
	assert.Equal(t, 5.0, fleet.AvgFailureRate)
	assert.Equal(t, 1.5, fleet.AvgMTTRDays)
	assert.Equal(t, int64(4000), fleet.LanguageDistribution["Go"])
	assert.Equal(t, map[string]int{"small": 1, "medium": 1, "large": 1}, fleet.SizeDistribution)
	assert.Equal(t, 1, fleet.TierDistribution[domain.TierHigh])
	assert.Equal(t, 1, fleet.TierDistribution[domain.TierMedium])
}
