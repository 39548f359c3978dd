package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// ParseSSEStream reads an Anthropic event stream, forwarding the text of
// content_block_delta events and returning the accumulated text. Event-name
// lines, comments, and unparseable payloads are skipped.
func ParseSSEStream(ctx context.Context, reader io.Reader, onToken func(string), logger *zap.Logger) (string, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	var content strings.Builder

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return content.String(), ctx.Err()
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			logger.Debug("Skip unparseable SSE event", zap.Error(err))
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				content.WriteString(event.Delta.Text)
				onToken(event.Delta.Text)
			}
		case "message_stop":
			return content.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return content.String(), fmt.Errorf("SSE scan error: %w", err)
	}
	return content.String(), nil
}
