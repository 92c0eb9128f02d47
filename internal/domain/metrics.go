package domain

// PerformanceTier classifies a team's delivery performance
type PerformanceTier string

const (
	TierElite  PerformanceTier = "elite"
	TierHigh   PerformanceTier = "high"
	TierMedium PerformanceTier = "medium"
	TierLow    PerformanceTier = "low"
)

// DeploymentFrequency measures how often deployments happen
type DeploymentFrequency struct {
	FrequencyPerDay    float64 `json:"frequency_per_day"`
	TotalDeployments   int     `json:"total_deployments"`
	AnalysisPeriodDays int     `json:"analysis_period_days"`
}

// LeadTime measures commit-to-deployment latency in days.
// The whole struct is absent when the window has no deployments.
type LeadTime struct {
	AverageDays float64 `json:"average_days"`
	MedianDays  float64 `json:"median_days"`
	MinDays     float64 `json:"min_days"`
	MaxDays     float64 `json:"max_days"`
}

// ChangeFailureRate measures the share of deployments that fix failures.
// FailureRate is always 0 when TotalDeployments is 0.
type ChangeFailureRate struct {
	FailureRate        float64 `json:"failure_rate"`
	BugOrIncidentFixes int     `json:"bug_or_incident_fixes"`
	TotalDeployments   int     `json:"total_deployments"`
}

// MTTR measures mean time to recovery. The time fields are omitted when no
// incidents were analyzed; unresolved incidents are counted but excluded
// from the averages.
type MTTR struct {
	AverageDays            *float64 `json:"average_days,omitempty"`
	MinDays                *float64 `json:"min_days,omitempty"`
	MaxDays                *float64 `json:"max_days,omitempty"`
	TotalIncidentsAnalyzed int      `json:"total_incidents_analyzed"`
	UnresolvedIncidents    int      `json:"unresolved_incidents"`
}

// DataSummary counts the raw activity the metrics were derived from
type DataSummary struct {
	CommitsCount  int `json:"commits_count"`
	ReleasesCount int `json:"releases_count"`
	TagsCount     int `json:"tags_count"`
}

// DORAMetrics is the full metrics record for one team and one analysis
// window. It is recomputed wholesale on every refresh; the previous record
// is replaced, never merged.
type DORAMetrics struct {
	Window              string              `json:"window"` // "7d", "30d", "90d"
	DeploymentFrequency DeploymentFrequency `json:"deployment_frequency"`
	LeadTime            *LeadTime           `json:"lead_time,omitempty"`
	ChangeFailureRate   ChangeFailureRate   `json:"change_failure_rate"`
	MTTR                MTTR                `json:"mttr"`
	DataSummary         DataSummary         `json:"data_summary"`
	PerformanceTier     PerformanceTier     `json:"performance_tier"`
}

// TeamMetrics bundles a team's snapshot and its metrics records by window
type TeamMetrics struct {
	TeamID   string                  `json:"team_id"`
	Snapshot *RepositorySnapshot     `json:"snapshot,omitempty"`
	Records  map[string]*DORAMetrics `json:"records"`
}

// FleetMetrics aggregates all teams' current metrics into fleet-wide
// distributions for one analysis window
type FleetMetrics struct {
	Window                 string                  `json:"window"`
	TotalTeams             int                     `json:"total_teams"`
	TeamsWithMetrics       int                     `json:"teams_with_metrics"`
	TotalDeployments       int                     `json:"total_deployments"`
	AvgDeploymentFrequency float64                 `json:"avg_deployment_frequency"`
	AvgLeadTimeDays        float64                 `json:"avg_lead_time_days"`
	AvgFailureRate         float64                 `json:"avg_failure_rate"`
	AvgMTTRDays            float64                 `json:"avg_mttr_days"`
	LanguageDistribution   map[string]int64        `json:"language_distribution"`
	SizeDistribution       map[string]int          `json:"size_distribution"`
	TierDistribution       map[PerformanceTier]int `json:"tier_distribution"`
}
