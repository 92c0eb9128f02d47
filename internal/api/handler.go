package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/COS301-SE-2025/devx360-metrics/internal/aggregator"
	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	apperrors "github.com/COS301-SE-2025/devx360-metrics/internal/errors"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
)

// Refresher accepts background refresh requests for a team
type Refresher interface {
	RefreshTeamAsync(teamID string)
}

// InsightReader reports the state of a team's narrative analysis job
type InsightReader interface {
	Status(ctx context.Context, teamID string) (*domain.InsightJob, error)
}

// Handler handles API requests
type Handler struct {
	store     storage.Storage
	refresher Refresher
	insights  InsightReader
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage, refresher Refresher, insights InsightReader) *Handler {
	return &Handler{
		store:     store,
		refresher: refresher,
		insights:  insights,
	}
}

type createTeamRequest struct {
	Name    string   `json:"name"`
	RepoURL string   `json:"repo_url"`
	Members []string `json:"members"`
}

// CreateTeam registers a team with its linked repository
// POST /api/v1/teams
func (h *Handler) CreateTeam(c *gin.Context) {
	var req createTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}
	if req.Name == "" {
		respondError(c, apperrors.NewBadRequestError("name is required"))
		return
	}
	fullName, err := parseRepoFullName(req.RepoURL)
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now().UTC()
	team := &domain.Team{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Members:      req.Members,
		RepoURL:      req.RepoURL,
		RepoFullName: fullName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.SaveTeam(c.Request.Context(), team); err != nil {
		respondError(c, err)
		return
	}

	// A new team gets its first refresh immediately rather than waiting
	// for the next scheduler tick.
	h.refresher.RefreshTeamAsync(team.ID)

	c.JSON(http.StatusCreated, gin.H{
		"data": team,
	})
}

// ListTeams returns all registered teams
// GET /api/v1/teams
func (h *Handler) ListTeams(c *gin.Context) {
	teams, err := h.store.ListTeams(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": teams,
	})
}

// GetTeam returns a team with its current metrics
// GET /api/v1/teams/:id
func (h *Handler) GetTeam(c *gin.Context) {
	id := c.Param("id")

	team, err := h.store.GetTeam(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	metrics, err := h.store.GetTeamMetrics(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"team":     team,
			"snapshot": metrics.Snapshot,
			"metrics":  metrics.Records,
		},
	})
}

// DeleteTeam removes a team and all of its derived data
// DELETE /api/v1/teams/:id
func (h *Handler) DeleteTeam(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.DeleteTeam(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshTeamStats accepts a refresh request and processes it in the
// background. The response is always 202; clients observe completion by
// polling the team endpoint.
// POST /api/v1/teams/:id/refresh-stats
func (h *Handler) RefreshTeamStats(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.store.GetTeam(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.refresher.RefreshTeamAsync(id)

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"team_id": id,
			"status":  "accepted",
		},
	})
}

// GetAIReview returns the state of a team's narrative analysis. A pending
// job answers 202 so pollers keep waiting; a failed job answers 500 with
// the recorded error.
// GET /api/v1/ai-review?teamId=...
func (h *Handler) GetAIReview(c *gin.Context) {
	teamID := c.Query("teamId")
	if teamID == "" {
		respondError(c, apperrors.NewBadRequestError("teamId query parameter is required"))
		return
	}
	if _, err := h.store.GetTeam(c.Request.Context(), teamID); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.insights.Status(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, err)
		return
	}

	switch job.Status {
	case domain.InsightPending:
		c.JSON(http.StatusAccepted, gin.H{
			"data": job,
		})
	case domain.InsightError:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    apperrors.ErrCodeInsightBackend,
				"message": job.Error,
			},
			"data": job,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"data": job,
		})
	}
}

// GetFleetMetrics returns fleet-wide aggregates for one analysis window
// GET /api/v1/fleet/metrics?window=30d
func (h *Handler) GetFleetMetrics(c *gin.Context) {
	window := c.DefaultQuery("window", "30d")
	switch window {
	case "7d", "30d", "90d":
	default:
		respondError(c, apperrors.NewBadRequestError("window must be one of: 7d, 30d, 90d"))
		return
	}

	teams, err := h.store.ListTeamMetrics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": aggregator.Aggregate(teams, window),
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// parseRepoFullName extracts "owner/name" from a repository reference:
// an https URL, an ssh remote, or the bare owner/name form.
func parseRepoFullName(repoURL string) (string, *apperrors.AppError) {
	s := strings.TrimSpace(repoURL)
	if s == "" {
		return "", apperrors.NewBadRequestError("repo_url is required")
	}
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimPrefix(s, "https://github.com/")
	s = strings.TrimPrefix(s, "http://github.com/")
	s = strings.TrimPrefix(s, "git@github.com:")
	s = strings.Trim(s, "/")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", apperrors.NewBadRequestError("repo_url must reference a repository as owner/name")
	}
	return parts[0] + "/" + parts[1], nil
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		case apperrors.ErrCodeTransient:
			status = http.StatusServiceUnavailable
		case apperrors.ErrCodeInsightBackend:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
