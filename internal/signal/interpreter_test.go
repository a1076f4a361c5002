package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
)

func newTestInterpreter(t *testing.T, handler http.HandlerFunc) (*AnthropicInterpreter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Anthropic: config.AnthropicConfig{
			APIKey:    "test-key",
			BaseURL:   server.URL,
			Model:     "test-model",
			MaxTokens: 512,
		},
	}
	log := logger.New(cfg)
	client := httputil.New(cfg, log).DisableRetry()

	return NewAnthropicInterpreter(cfg, client, log), server
}

func modelReply(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	resp := map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": text}},
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestInterpretExtractsSignal(t *testing.T) {
	interp, _ := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "TSLA calls")

		modelReply(t, w, `{"ticker":"TSLA","direction":"call","confidence":0.85,"asset_type":"option","reasoning":"author is buying calls","expiry":"2026-09-18","strike":300}`)
	})

	post := &contracts.Post{
		ID:        "p1",
		Subreddit: "wallstreetbets",
		Title:     "Loading up on TSLA calls",
		Body:      "Delivery numbers will crush estimates.",
	}

	sig, err := interp.Interpret(context.Background(), post)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "TSLA", sig.Ticker)
	assert.Equal(t, contracts.DirectionCall, sig.Direction)
	assert.Equal(t, contracts.AssetOption, sig.AssetType)
	assert.Equal(t, 0.85, sig.Confidence)
	require.NotNil(t, sig.Option)
	assert.Equal(t, "2026-09-18", sig.Option.Expiry)
	assert.Equal(t, 300.0, sig.Option.Strike)
}

func TestInterpretNoTickerMeansNoSignal(t *testing.T) {
	interp, _ := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, `{"ticker":"UNKNOWN","direction":"none","confidence":0.0,"asset_type":"stock","reasoning":"no trade in post"}`)
	})

	sig, err := interp.Interpret(context.Background(), &contracts.Post{ID: "p2", Title: "market thoughts"})
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestInterpretStripsMarkdownFences(t *testing.T) {
	interp, _ := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, "```json\n{\"ticker\":\"gme\",\"direction\":\"long\",\"confidence\":1.4,\"asset_type\":\"stock\",\"reasoning\":\"yolo\"}\n```")
	})

	sig, err := interp.Interpret(context.Background(), &contracts.Post{ID: "p3", Title: "GME"})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "GME", sig.Ticker)
	assert.Equal(t, 1.0, sig.Confidence, "confidence clamps to 1")
}

func TestInterpretServerErrorIsUnavailable(t *testing.T) {
	interp, _ := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	sig, err := interp.Interpret(context.Background(), &contracts.Post{ID: "p4", Title: "AAPL"})
	assert.Nil(t, sig)
	assert.True(t, contracts.IsUnavailable(err))
}

func TestInterpretGarbageOutputIsUnavailable(t *testing.T) {
	interp, _ := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		modelReply(t, w, "I cannot analyze this post.")
	})

	sig, err := interp.Interpret(context.Background(), &contracts.Post{ID: "p5", Title: "AAPL"})
	assert.Nil(t, sig)
	assert.True(t, contracts.IsUnavailable(err))
}

func TestInterpretTruncatesLongBody(t *testing.T) {
	var gotLen int
	interp, _ := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotLen = len(req.Messages[0].Content)
		modelReply(t, w, `{"ticker":"SPY","direction":"short","confidence":0.8,"asset_type":"stock","reasoning":"bearish wall of text"}`)
	})

	long := make([]byte, 20000)
	for i := range long {
		long[i] = 'a'
	}
	post := &contracts.Post{ID: "p6", Subreddit: "stocks", Title: "SPY", Body: string(long)}

	_, err := interp.Interpret(context.Background(), post)
	require.NoError(t, err)
	assert.Less(t, gotLen, 5000)
}
