package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagevet/pagevet/internal/audit"
)

func newTestOracle(t *testing.T, handler func(*http.Request) (*http.Response, error)) *OpenAIOracle {
	t.Helper()
	c, err := NewOpenAIOracle(OracleOptions{APIKey: "test-key"})
	require.NoError(t, err)
	c.do = handler
	return c
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestOracleRequestsZeroTemperature(t *testing.T) {
	var captured chatRequest
	c := newTestOracle(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
		return httpResponse(http.StatusOK,
			`{"choices":[{"message":{"content":"{\"passed\":true,\"reason\":\"ok\"}"}}]}`), nil
	})

	raw, err := c.Complete(context.Background(), "judge this")
	require.NoError(t, err)
	require.Contains(t, raw, `"passed"`)
	require.Zero(t, captured.Temperature)
	require.Equal(t, "gpt-4.1-mini", captured.Model)
	require.Len(t, captured.Messages, 1)
	require.Equal(t, "judge this", captured.Messages[0].Content)
}

func TestOracleMapsRateLimitWithHeaderHint(t *testing.T) {
	c := newTestOracle(t, func(*http.Request) (*http.Response, error) {
		resp := httpResponse(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
		resp.Header.Set("Retry-After", "3")
		return resp, nil
	})

	_, err := c.Complete(context.Background(), "p")
	require.ErrorIs(t, err, audit.ErrRateLimited)
	hint, ok := RetryAfterHint(err)
	require.True(t, ok)
	require.Equal(t, 3*time.Second, hint)
}

func TestOracleMapsCreditExhaustion(t *testing.T) {
	c := newTestOracle(t, func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusPaymentRequired, "insufficient credit balance"), nil
	})
	_, err := c.Complete(context.Background(), "p")
	require.ErrorIs(t, err, audit.ErrCreditsExhausted)
}

func TestOracleMapsQuotaErrors(t *testing.T) {
	c := newTestOracle(t, func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusTooManyRequests,
			`{"error":{"message":"You exceeded your current quota"}}`), nil
	})
	_, err := c.Complete(context.Background(), "p")
	require.ErrorIs(t, err, audit.ErrQuotaExceeded)
}

func TestOracleRejectsEmptyCompletion(t *testing.T) {
	c := newTestOracle(t, func(*http.Request) (*http.Response, error) {
		return httpResponse(http.StatusOK, `{"choices":[]}`), nil
	})
	_, err := c.Complete(context.Background(), "p")
	require.ErrorIs(t, err, audit.ErrMalformedResponse)
}

func TestNewOracleRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIOracle(OracleOptions{})
	require.ErrorIs(t, err, audit.ErrInvalidInput)
}
