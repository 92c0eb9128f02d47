package domain

import "time"

// InsightStatus represents the lifecycle state of an AI insight job
type InsightStatus string

const (
	InsightNotStarted InsightStatus = "not_started"
	InsightPending    InsightStatus = "pending"
	InsightCompleted  InsightStatus = "completed"
	InsightError      InsightStatus = "error"
)

// InsightJob tracks narrative analysis for one team. Exactly one job exists
// per team; completed and error are terminal until the next refresh resets
// the job to pending.
type InsightJob struct {
	TeamID    string            `json:"team_id"`
	Status    InsightStatus     `json:"status"`
	Progress  int               `json:"progress"` // 0-100, meaningful while pending
	Feedback  string            `json:"ai_feedback,omitempty"`
	Sections  map[string]string `json:"sections,omitempty"`
	Error     string            `json:"error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}
