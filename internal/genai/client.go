package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotConfigured means no API key could be resolved.
	ErrNotConfigured = errors.New("generation API key not configured")
	// ErrGeneration wraps any transport or API failure of a generation call.
	ErrGeneration = errors.New("generation failed")
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client calls the Google Generative Language API. The API key stays behind
// this boundary: callers hand over a prompt and a model name, never a
// credential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	hasKey     bool
	mu         sync.RWMutex
}

func NewClient(apiKey string) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}
	if apiKey != "" {
		c.apiKey = apiKey
		c.hasKey = true
	}
	return c
}

func (c *Client) UpdateAPIKey(apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if apiKey != "" {
		c.apiKey = apiKey
		c.hasKey = true
	} else {
		c.apiKey = ""
		c.hasKey = false
	}
}

func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasKey
}

func (c *Client) getAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// ResolveAPIKey picks the key to use: environment first, then the encrypted
// database value.
func ResolveAPIKey(envKey, dbKey string) (key string, source string) {
	if envKey != "" {
		return envKey, "env"
	}
	if dbKey != "" {
		return dbKey, "database"
	}
	return "", "none"
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends a prompt to models/{model}:generateContent and returns the
// first candidate's text. One attempt, no retries; the caller decides what a
// failure means.
func (c *Client) Generate(ctx context.Context, promptText, model string) (string, error) {
	key := c.getAPIKey()
	if key == "" {
		return "", ErrNotConfigured
	}
	if promptText == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrGeneration)
	}
	if model == "" {
		model = "gemini-pro"
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: promptText}}}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrGeneration, err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response (status %d): %v", ErrGeneration, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("%w: status %d", ErrGeneration, resp.StatusCode)
	}

	for _, cand := range parsed.Candidates {
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if text := b.String(); text != "" {
			return text, nil
		}
	}

	return "", fmt.Errorf("%w: response contained no text", ErrGeneration)
}
