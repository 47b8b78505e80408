package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pagevet/pagevet/internal/audit"
)

// OracleOptions configures the OpenAI-compatible chat-completions client.
type OracleOptions struct {
	BaseURL        string
	Model          string
	APIKey         string
	APIKeyEnv      string
	TimeoutSeconds int
	ExtraHeaders   map[string]string
}

func (o *OracleOptions) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

// OpenAIOracle implements audit.Oracle against any OpenAI-compatible
// chat-completions endpoint. Requests always carry temperature 0 so
// repeated judging of unchanged content yields the same verdict.
type OpenAIOracle struct {
	url    string
	model  string
	apiKey string
	extraH map[string]string
	do     func(*http.Request) (*http.Response, error)
}

// NewOpenAIOracle builds the client from options, reading the API key from
// the environment when not passed explicitly.
func NewOpenAIOracle(opts OracleOptions) (*OpenAIOracle, error) {
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: missing oracle api key", audit.ErrInvalidInput)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &OpenAIOracle{
		url:    strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		model:  opts.Model,
		apiKey: key,
		extraH: opts.ExtraHeaders,
		do:     hc.Do,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one judging prompt and returns the raw response text.
func (c *OpenAIOracle) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new oracle request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode/100 != 2 {
		return "", classifyHTTPError(resp)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decode: %v", audit.ErrMalformedResponse, err)
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", audit.ErrMalformedResponse)
	}
	return cr.Choices[0].Message.Content, nil
}

// classifyHTTPError maps provider status codes and error bodies onto the
// audit error taxonomy, preserving retry-after hints.
func classifyHTTPError(resp *http.Response) error {
	slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(slurp))
	lower := strings.ToLower(msg)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests && strings.Contains(lower, "quota"):
		return fmt.Errorf("%w: %s", audit.ErrQuotaExceeded, clip(msg, 200))
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfterHeader(resp), Message: clip(msg, 200)}
	case resp.StatusCode == http.StatusPaymentRequired,
		strings.Contains(lower, "insufficient credit"),
		strings.Contains(lower, "credit balance"):
		return fmt.Errorf("%w: %s", audit.ErrCreditsExhausted, clip(msg, 200))
	case strings.Contains(lower, "quota"):
		return fmt.Errorf("%w: %s", audit.ErrQuotaExceeded, clip(msg, 200))
	default:
		return fmt.Errorf("oracle upstream %d: %s", resp.StatusCode, clip(msg, 200))
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
