package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	llm "github.com/evalgate/evalgate/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory(entity.KindGemini, func(cfg llm.ClientConfig, logger *zap.Logger) llm.Client {
		return New(cfg, logger)
	})
}

// Client speaks the Google Gemini REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Gemini client for one provider endpoint.
func New(cfg llm.ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("adapter", "gemini")),
	}
}

var _ llm.Client = (*Client)(nil)

// Complete implements llm.Client (non-streaming).
// Gemini has no system role on this endpoint; system and user messages are
// joined with blank lines into one user turn.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (string, error) {
	var prompt strings.Builder
	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		if prompt.Len() > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(msg.Content)
	}

	apiReq := &Request{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: prompt.String()}},
		}},
		GenerationConfig: llm.ProjectParams(entity.KindGemini, req.Params),
	}

	payload, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, req.Model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse Gemini response: %w", err)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty Gemini response: no candidates")
	}
	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

// Stream implements llm.Client. Gemini streaming is not wired up; the call
// falls back to Complete and emits the full result as a single token.
func (c *Client) Stream(ctx context.Context, req *llm.Request, onToken func(string)) (string, error) {
	text, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if text != "" {
		onToken(text)
	}
	return text, nil
}
