// Package suggest talks to the hosted language-model APIs: Gemini for
// task metadata suggestions, OpenAI for a one-word priority call. Both
// are thin request/response clients that normalize free-form model
// output into fixed shapes.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/amirbrooks/questlog/internal/task"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingAPIKey     = errors.New("api key not configured")
	ErrEmptyResponse     = errors.New("empty model response")
	ErrMalformedResponse = errors.New("malformed model response")
)

// ProviderError reports a non-success status from an upstream model
// API, carrying the status and raw body for proxying.
type ProviderError struct {
	Provider string
	Status   int
	Body     []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.Status)
}

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1/models/gemini-1.5-flash:generateContent"
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

// Suggestion is the fixed-shape record a task title suggestion resolves
// to.
type Suggestion struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Suggestions []string `json:"suggestions"`
}

// Client calls the upstream model endpoints. Endpoints are overridable
// so tests can point at a stub server.
type Client struct {
	GeminiKey      string
	OpenAIKey      string
	GeminiEndpoint string
	OpenAIEndpoint string
	HTTPClient     *http.Client
}

func NewClient(geminiKey, openAIKey string) *Client {
	return &Client{
		GeminiKey:      geminiKey,
		OpenAIKey:      openAIKey,
		GeminiEndpoint: defaultGeminiEndpoint,
		OpenAIEndpoint: defaultOpenAIEndpoint,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func suggestPrompt(title string) string {
	return fmt.Sprintf(`Given the following task title: %q, produce a JSON object with EXACTLY these keys:
  - description: a concise task description (string)
  - category: one of [work, personal, shopping, other]
  - priority: one of [high, medium, low]
  - suggestions: an array of exactly 3 short actionable suggestions (strings)
Return ONLY the JSON.`, title)
}

// Suggest asks Gemini for metadata for a task title.
func (c *Client) Suggest(ctx context.Context, title string) (*Suggestion, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if c.GeminiKey == "" {
		return nil, fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: suggestPrompt(title)}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 200,
		},
	}
	status, body, err := c.postJSON(ctx, c.GeminiEndpoint+"?key="+c.GeminiKey, nil, reqBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &ProviderError{Provider: "gemini", Status: status, Body: body}
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	var out Suggestion
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

// StripCodeFence removes an optional markdown code-fence wrapper
// ("```json ... ```" or "``` ... ```") from model output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json") && strings.HasSuffix(s, "```"):
		s = strings.TrimSuffix(strings.TrimPrefix(s, "```json"), "```")
	case strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) > 6:
		s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	}
	return strings.TrimSpace(s)
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// SuggestPriority asks OpenAI to rate the task's priority. Anything the
// model says outside {high, medium, low} is coerced to medium.
func (c *Client) SuggestPriority(ctx context.Context, taskText string) (string, error) {
	taskText = strings.TrimSpace(taskText)
	if taskText == "" {
		return "", fmt.Errorf("%w: task text is required", ErrInvalidInput)
	}
	if c.OpenAIKey == "" {
		return "", fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}

	reqBody := openAIRequest{
		Model: "gpt-4.1-2025-04-14",
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: `You are a productivity AI that analyzes tasks and suggests appropriate priorities. Respond with only "high", "medium", or "low" based on urgency and importance.`,
			},
			{
				Role:    "user",
				Content: fmt.Sprintf("Analyze this task and suggest priority level: %q", taskText),
			},
		},
		MaxTokens:   10,
		Temperature: 0.1,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.OpenAIKey}
	status, body, err := c.postJSON(ctx, c.OpenAIEndpoint, headers, reqBody)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ProviderError{Provider: "openai", Status: status, Body: body}
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	p := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	if !task.ValidPriority(p) {
		p = task.PriorityMedium
	}
	return p, nil
}

func (c *Client) postJSON(ctx context.Context, url string, headers map[string]string, body any) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// Keep the URL out of the error: the Gemini key rides in the query,
		// and *url.Error repeats the full URL in its message.
		var uerr *neturl.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return 0, nil, fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}
