package anthropic

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

const anthropicVersion = "2023-06-01"

// Anthropic requires an explicit max_tokens on every request.
const defaultMaxTokens = 1024

func init() {
	llm.RegisterFactory(entity.KindAnthropic, func(cfg llm.ClientConfig, logger *zap.Logger) llm.Client {
		return New(cfg, logger)
	})
}

// Client speaks the Anthropic Messages API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// New creates an Anthropic client for one provider endpoint.
func New(cfg llm.ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("adapter", "anthropic")),
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
		return "", fmt.Errorf("Anthropic API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse Anthropic response: %w", err)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty Anthropic response: no content")
	}
	return apiResp.Content[0].Text, nil
}

// Stream implements llm.Client with Anthropic SSE streaming.
func (c *Client) Stream(ctx context.Context, req *llm.Request, onToken func(string)) (string, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Anthropic API error %d: %s", resp.StatusCode, string(respBody))
	}

	streamDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, force-closing Anthropic SSE stream", zap.Error(ctx.Err()))
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	text, err := ParseSSEStream(ctx, resp.Body, onToken, c.logger)
	close(streamDone)
	return text, err
}

func (c *Client) post(ctx context.Context, req *llm.Request, stream bool) (*http.Response, error) {
	var system strings.Builder
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
			continue
		}
		messages = append(messages, map[string]string{"role": msg.Role, "content": msg.Content})
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	if system.Len() > 0 {
		body["system"] = system.String()
	}
	for name, value := range llm.ProjectParams(entity.KindAnthropic, req.Params) {
		body[name] = value
	}
	if _, ok := body["max_tokens"]; !ok {
		body["max_tokens"] = defaultMaxTokens
	}
	if stream {
		body["stream"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}
