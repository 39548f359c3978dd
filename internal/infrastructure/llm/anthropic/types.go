package anthropic

// Response envelope types for the Anthropic Messages API.

type Response struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StreamEvent is one SSE data payload of a streaming response. Only
// content_block_delta events carry text; message_stop ends the stream.
type StreamEvent struct {
	Type  string      `json:"type"`
	Delta StreamDelta `json:"delta"`
}

type StreamDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
