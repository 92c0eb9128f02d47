package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

// Client is the API client for devx360-metrics
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TeamDetail bundles a team with its snapshot and metrics records
type TeamDetail struct {
	Team     *domain.Team                   `json:"team"`
	Snapshot *domain.RepositorySnapshot     `json:"snapshot"`
	Metrics  map[string]*domain.DORAMetrics `json:"metrics"`
}

// CreateTeam registers a new team
func (c *Client) CreateTeam(ctx context.Context, name, repoURL string, members []string) (*domain.Team, error) {
	var response struct {
		Data *domain.Team `json:"data"`
	}
	body := map[string]interface{}{
		"name":     name,
		"repo_url": repoURL,
		"members":  members,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/teams", nil, body, &response, http.StatusCreated); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListTeams retrieves all registered teams
func (c *Client) ListTeams(ctx context.Context) ([]*domain.Team, error) {
	var response struct {
		Data []*domain.Team `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/teams", nil, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetTeam retrieves a team with its current metrics
func (c *Client) GetTeam(ctx context.Context, id string) (*TeamDetail, error) {
	var response struct {
		Data *TeamDetail `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/teams/"+url.PathEscape(id), nil, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteTeam removes a team and its derived data
func (c *Client) DeleteTeam(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/teams/"+url.PathEscape(id), nil, nil, nil, http.StatusNoContent)
}

// RefreshTeamStats requests a background refresh of a team's metrics
func (c *Client) RefreshTeamStats(ctx context.Context, id string) error {
	path := "/api/v1/teams/" + url.PathEscape(id) + "/refresh-stats"
	return c.do(ctx, http.MethodPost, path, nil, nil, nil, http.StatusAccepted)
}

// GetAIReview retrieves the state of a team's narrative analysis. A
// pending job is a normal response, not an error; inspect the returned
// job's status.
func (c *Client) GetAIReview(ctx context.Context, teamID string) (*domain.InsightJob, error) {
	params := url.Values{}
	params.Set("teamId", teamID)

	var response struct {
		Data *domain.InsightJob `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/ai-review", params, nil, &response,
		http.StatusOK, http.StatusAccepted, http.StatusInternalServerError)
	if err != nil {
		return nil, err
	}
	if response.Data == nil {
		return nil, fmt.Errorf("empty ai-review response")
	}
	return response.Data, nil
}

// WaitForInsight polls the analysis job until it completes, fails, or the
// context expires
func (c *Client) WaitForInsight(ctx context.Context, teamID string, interval time.Duration) (*domain.InsightJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetAIReview(ctx, teamID)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case domain.InsightCompleted, domain.InsightError:
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetFleetMetrics retrieves fleet-wide aggregates for one window
func (c *Client) GetFleetMetrics(ctx context.Context, window string) (*domain.FleetMetrics, error) {
	params := url.Values{}
	if window != "" {
		params.Set("window", window)
	}

	var response struct {
		Data *domain.FleetMetrics `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/fleet/metrics", params, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &response, http.StatusOK); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result interface{}, acceptStatuses ...int) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	accepted := false
	for _, status := range acceptStatuses {
		if resp.StatusCode == status {
			accepted = true
			break
		}
	}
	if !accepted {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(raw))
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
