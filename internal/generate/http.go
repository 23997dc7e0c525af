package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient calls an OpenAI-compatible /api/generate endpoint. It is the
// production Generator: one request per stage, no retries, failures land in
// the stage result.
type HTTPClient struct {
	baseURL    string
	model      string
	token      string
	httpClient *http.Client
}

// NewHTTPClient returns a client for the given generation endpoint.
// token may be empty for unauthenticated backends.
func NewHTTPClient(baseURL, model, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		model:   model,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Input  string `json:"input"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate sends the prompt and payload and returns the generated text.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, payload string) (string, error) {
	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Input:  payload,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate: status %d: %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if result.Text == "" {
		return "", fmt.Errorf("generator returned no text")
	}

	return result.Text, nil
}

// HealthCheck verifies the backend is reachable.
func (c *HTTPClient) HealthCheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/api/tags")
	if err != nil {
		return fmt.Errorf("generator health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generator health check: status %d", resp.StatusCode)
	}
	return nil
}
