package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futures-llm-agent/internal/errs"
	"futures-llm-agent/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatCompletionFixture(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "deepseek-chat",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
}

func TestClient_Analyze_FullResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionFixture(
			`{"market_overview":"steady","recommendations":[{"symbol":"BTCUSDT","action":"long","confidence":80}]}`,
		))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "deepseek-chat", Timeout: 5 * time.Second, Temperature: 0.1})

	snap := []model.MarketSnapshot{{Symbol: "BTCUSDT", MarkPrice: 100}}
	parsed, err := c.Analyze(t.Context(), snap, SessionContext{ElapsedMinutes: 1, CallCount: 1})
	require.NoError(t, err)
	assert.Equal(t, model.QualityFull, parsed.Quality)
	require.Len(t, parsed.Recommendations, 1)
	assert.Equal(t, "BTCUSDT", parsed.Recommendations[0].Symbol)
}

func TestClient_Analyze_DegradedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionFixture("I am unable to comply with that request."))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "deepseek-chat", Timeout: 5 * time.Second})

	parsed, err := c.Analyze(t.Context(), []model.MarketSnapshot{{Symbol: "BTCUSDT"}}, SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, model.QualityPartial, parsed.Quality)
	assert.Empty(t, parsed.Recommendations)
}

func TestClient_Analyze_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "deepseek-chat", Timeout: 5 * time.Second})

	_, err := c.Analyze(t.Context(), []model.MarketSnapshot{{Symbol: "BTCUSDT"}}, SessionContext{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransientNetwork))
}
