package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
)

// maxBodyChars caps how much post body is sent to the model.
const maxBodyChars = 4000

// Interpreter extracts a raw trading signal from a post. A nil signal with
// a nil error means the post carries no actionable signal.
type Interpreter interface {
	Interpret(ctx context.Context, post *contracts.Post) (*contracts.RawSignal, error)
}

const systemPrompt = `You analyze social media posts about financial trades. Extract the trade the author is making or recommending.

Respond with ONLY a JSON object, no other text:
{
  "ticker": "SYMBOL or UNKNOWN",
  "direction": "long | short | call | put | none",
  "confidence": 0.0 to 1.0,
  "asset_type": "stock | crypto | option",
  "reasoning": "one sentence",
  "expiry": "YYYY-MM-DD or empty",
  "strike": 0.0
}

Rules:
- ticker is the primary instrument the post is about. Use UNKNOWN if none is identifiable.
- direction is the author's own exposure: long/short for shares or crypto, call/put for options.
- confidence reflects how clearly the post commits to the trade, not whether the trade is good.
- expiry and strike only apply to options; leave them zero-valued otherwise.`

// AnthropicInterpreter calls an Anthropic-compatible messages API.
type AnthropicInterpreter struct {
	client *httputil.Client
	cfg    config.AnthropicConfig
	logger *logger.Logger
}

// NewAnthropicInterpreter creates an interpreter backed by the messages API.
func NewAnthropicInterpreter(cfg *config.Config, client *httputil.Client, log *logger.Logger) *AnthropicInterpreter {
	return &AnthropicInterpreter{
		client: client,
		cfg:    cfg.Anthropic,
		logger: log,
	}
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system"`
	Messages  []messageContent `json:"messages"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// modelSignal is the JSON shape the model is instructed to return.
type modelSignal struct {
	Ticker     string  `json:"ticker"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	AssetType  string  `json:"asset_type"`
	Reasoning  string  `json:"reasoning"`
	Expiry     string  `json:"expiry"`
	Strike     float64 `json:"strike"`
}

// Interpret sends the post to the model and parses its JSON verdict.
func (a *AnthropicInterpreter) Interpret(ctx context.Context, post *contracts.Post) (*contracts.RawSignal, error) {
	body := post.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	userMsg := fmt.Sprintf("Subreddit: r/%s\nTitle: %s\n\n%s", post.Subreddit, post.Title, body)

	reqBody := messagesRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    systemPrompt,
		Messages:  []messageContent{{Role: "user", Content: userMsg}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal interpreter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, contracts.NewUnavailable("interpreter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, contracts.NewUnavailable("interpreter",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data)))
	}

	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, contracts.NewUnavailable("interpreter", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(mr.Content) == 0 {
		return nil, contracts.NewUnavailable("interpreter", fmt.Errorf("empty response content"))
	}

	return a.parseSignal(post.ID, mr.Content[0].Text)
}

// parseSignal converts the model's JSON text into a RawSignal. Malformed
// output is a collaborator failure; a clean "no signal" verdict is nil, nil.
func (a *AnthropicInterpreter) parseSignal(postID, text string) (*contracts.RawSignal, error) {
	text = extractJSON(text)

	var ms modelSignal
	if err := json.Unmarshal([]byte(text), &ms); err != nil {
		return nil, contracts.NewUnavailable("interpreter", fmt.Errorf("unparseable model output: %w", err))
	}

	ticker := strings.ToUpper(strings.TrimSpace(ms.Ticker))
	if ticker == "" || ticker == "UNKNOWN" {
		a.logger.WithField("post_id", postID).Debug("No ticker identified")
		return nil, nil
	}

	direction, ok := contracts.ParseDirection(ms.Direction)
	if !ok {
		return nil, contracts.NewUnavailable("interpreter", fmt.Errorf("unknown direction %q", ms.Direction))
	}
	if direction == contracts.DirectionNone {
		a.logger.WithField("post_id", postID).Debug("No directional signal")
		return nil, nil
	}

	assetType, ok := contracts.ParseAssetType(ms.AssetType)
	if !ok {
		assetType = contracts.AssetStock
	}
	if direction == contracts.DirectionCall || direction == contracts.DirectionPut {
		assetType = contracts.AssetOption
	}

	confidence := ms.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	sig := &contracts.RawSignal{
		Ticker:     ticker,
		Direction:  direction,
		Confidence: confidence,
		AssetType:  assetType,
		Reasoning:  strings.TrimSpace(ms.Reasoning),
	}
	if assetType == contracts.AssetOption && ms.Expiry != "" {
		sig.Option = &contracts.OptionDetails{Expiry: ms.Expiry, Strike: ms.Strike}
	}
	return sig, nil
}

// extractJSON strips markdown fences and surrounding prose so the payload
// survives models that wrap their answer.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return text
}
