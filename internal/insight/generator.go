// Package insight turns a clicked chart element into a short written
// insight, asking a text-generation model first and falling back to
// deterministic sentences when the model is unavailable.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
)

// maxResponseBytes bounds how much of a model response is read.
const maxResponseBytes = 1 << 20

var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator produces text for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// OllamaClient calls the /api/generate endpoint of an Ollama server.
type OllamaClient struct {
	endpoint string
	model    string
	client   *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// NewOllamaClient targets endpoint (e.g. http://localhost:11434). A nil
// client uses http.DefaultClient; deadlines come from the request context.
func NewOllamaClient(endpoint, model string, client *http.Client) *OllamaClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   client,
	}
}

func (c *OllamaClient) Name() string {
	return "ollama/" + c.model
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ollama: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", res.StatusCode, truncate(string(raw), 200))
	}

	parsed, err := decodeOllama(raw)
	if err != nil {
		return "", err
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama error: %s", parsed.Error)
	}

	text := strings.TrimSpace(parsed.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// decodeOllama accepts the response body, repairing it first if a proxy or
// a truncated stream left it as invalid JSON.
func decodeOllama(raw []byte) (ollamaResponse, error) {
	var parsed ollamaResponse
	err := json.Unmarshal(raw, &parsed)
	if err == nil {
		return parsed, nil
	}

	repaired, rerr := jsonrepair.RepairJSON(string(raw))
	if rerr != nil {
		return parsed, fmt.Errorf("decode ollama response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return parsed, fmt.Errorf("decode repaired ollama response: %w", err)
	}
	return parsed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
