package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

// ProbeAttempt records one connectivity probe request.
type ProbeAttempt struct {
	URL     string            `json:"url"`
	Status  int               `json:"status,omitempty"`
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// probeHeaders are the response headers worth echoing back in diagnostics.
var probeHeaders = []string{"Content-Type", "Server", "X-Request-Id"}

// Probe checks provider connectivity with a sequence of GET requests,
// stopping at the first success: {base}/v1/models, {base}/models, {base}.
// Auth follows the adapter kind: anthropic sends x-api-key, gemini appends
// ?key=, everything else sends a bearer token.
func Probe(ctx context.Context, client *http.Client, provider *entity.Provider) (bool, []ProbeAttempt) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	base := NormalizeBaseURL(provider.BaseURL)
	// Candidate paths already include /v1; avoid probing {base}/v1/v1/models.
	base = strings.TrimSuffix(base, "/v1")

	kind, _ := NormalizeKind(string(provider.Kind))

	attempts := make([]ProbeAttempt, 0, 3)
	for _, candidate := range []string{base + "/v1/models", base + "/models", base} {
		attempt := probeOnce(ctx, client, kind, provider.APIKey, candidate)
		attempts = append(attempts, attempt)
		if attempt.OK {
			return true, attempts
		}
	}
	return false, attempts
}

func probeOnce(ctx context.Context, client *http.Client, kind entity.AdapterKind, apiKey, url string) ProbeAttempt {
	attempt := ProbeAttempt{URL: url}

	requestURL := url
	if kind == entity.KindGemini && apiKey != "" {
		sep := "?"
		if strings.Contains(requestURL, "?") {
			sep = "&"
		}
		requestURL += sep + "key=" + apiKey
	}

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}

	if apiKey != "" {
		switch kind {
		case entity.KindAnthropic:
			req.Header.Set("x-api-key", apiKey)
		case entity.KindGemini:
			// key travels in the query string
		default:
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}
	defer resp.Body.Close()

	attempt.Status = resp.StatusCode
	attempt.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	attempt.Headers = map[string]string{}
	for _, h := range probeHeaders {
		if v := resp.Header.Get(h); v != "" {
			attempt.Headers[h] = v
		}
	}
	if !attempt.OK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		attempt.Error = strings.TrimSpace(string(snippet))
	}
	return attempt
}
