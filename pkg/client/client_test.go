package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

func TestWaitForInsightPollsThroughPending(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ai-review", r.URL.Path)
		assert.Equal(t, "t1", r.URL.Query().Get("teamId"))

		job := &domain.InsightJob{TeamID: "t1", Status: domain.InsightPending, Progress: 40}
		status := http.StatusAccepted
		if polls.Add(1) >= 3 {
			job = &domain.InsightJob{TeamID: "t1", Status: domain.InsightCompleted, Progress: 100, Feedback: "## Deployment Frequency\nship"}
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": job})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	job, err := c.WaitForInsight(context.Background(), "t1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.InsightCompleted, job.Status)
	assert.Contains(t, job.Feedback, "Deployment Frequency")
	assert.GreaterOrEqual(t, polls.Load(), int32(3), "202 responses must keep the poll loop going")
}

func TestGetAIReviewReturnsFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": "INSIGHT_BACKEND", "message": "backend unreachable"},
			"data":  &domain.InsightJob{TeamID: "t1", Status: domain.InsightError, Error: "backend unreachable"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	job, err := c.GetAIReview(context.Background(), "t1")
	require.NoError(t, err, "a failed analysis is a readable state, not a transport error")
	assert.Equal(t, domain.InsightError, job.Status)
	assert.Equal(t, "backend unreachable", job.Error)
}
