package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	apperrors "github.com/COS301-SE-2025/devx360-metrics/internal/errors"
)

// Generator produces narrative feedback from a team's computed metrics
type Generator interface {
	Generate(ctx context.Context, team *domain.Team, metrics *domain.TeamMetrics) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint
type OpenAIGenerator struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a narrative generator for the given endpoint
func NewOpenAIGenerator(endpoint, apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

const systemPrompt = `You are a DevOps performance analyst. Given a team's DORA metrics
and repository snapshot, write concise actionable feedback organized into exactly these
markdown sections: "## Deployment Frequency", "## Lead Time for Changes",
"## Change Failure Rate", "## Mean Time to Recovery".`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate submits the metrics payload and returns the narrative text
func (g *OpenAIGenerator) Generate(ctx context.Context, team *domain.Team, metrics *domain.TeamMetrics) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"team":     team.Name,
		"snapshot": metrics.Snapshot,
		"metrics":  metrics.Records,
	})
	if err != nil {
		return "", err
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewInsightBackendError("narrative backend unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewInsightBackendError("failed to read backend response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewInsightBackendError(
			fmt.Sprintf("narrative backend returned %s", resp.Status), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperrors.NewInsightBackendError("malformed backend response", err)
	}
	if parsed.Error != nil {
		return "", apperrors.NewInsightBackendError(parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", apperrors.NewInsightBackendError("backend returned no content", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
