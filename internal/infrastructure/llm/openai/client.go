package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	llm "github.com/evalgate/evalgate/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory(entity.KindOpenAICompat, func(cfg llm.ClientConfig, logger *zap.Logger) llm.Client {
		return New(cfg, logger)
	})
}

// Client speaks the OpenAI chat completions protocol over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// New creates an OpenAI-compatible client for one provider endpoint.
func New(cfg llm.ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("adapter", "openai-compat")),
	}
}

var _ llm.Client = (*Client)(nil)

// Complete implements llm.Client (non-streaming).
func (c *Client) Complete(ctx context.Context, req *llm.Request) (string, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("empty response: no choices")
	}
	return apiResp.Choices[0].Message.Content, nil
}

// Stream implements llm.Client with SSE streaming.
func (c *Client) Stream(ctx context.Context, req *llm.Request, onToken func(string)) (string, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	// Cancellation watchdog: a blocked stream read only aborts when the
	// body is force-closed.
	streamDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, force-closing SSE stream", zap.Error(ctx.Err()))
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	text, err := ParseSSEStream(ctx, resp.Body, onToken, c.logger)
	close(streamDone)
	return text, err
}

func (c *Client) post(ctx context.Context, req *llm.Request, stream bool) (*http.Response, error) {
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, map[string]string{"role": msg.Role, "content": msg.Content})
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	for name, value := range llm.ProjectParams(entity.KindOpenAICompat, req.Params) {
		body[name] = value
	}
	if stream {
		body["stream"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}
