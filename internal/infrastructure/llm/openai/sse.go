package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// ParseSSEStream reads a text/event-stream response, emitting text deltas and
// returning the accumulated text. Empty lines and ":" comment lines are
// skipped; a literal [DONE] payload or a finish_reason terminates the stream;
// unparseable payload lines are ignored for robustness against adapter quirks.
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

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debug("Skip unparseable SSE chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			onToken(choice.Delta.Content)
		}

		// Some compatible APIs never send [DONE]; finish_reason is enough.
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return content.String(), fmt.Errorf("SSE scan error: %w", err)
	}
	return content.String(), nil
}
