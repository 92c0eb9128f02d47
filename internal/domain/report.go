package domain

import "time"

// TeamOutcome records the result of one team's refresh within a batch run
type TeamOutcome struct {
	TeamID  string `json:"team_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RunReport summarizes a whole scheduler run. A run never aborts early on a
// single team's failure; every team appears in Outcomes.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcomes   []TeamOutcome `json:"outcomes"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
}
