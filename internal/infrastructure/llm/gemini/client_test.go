package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
	llm "github.com/evalgate/evalgate/internal/infrastructure/llm"
)

const candidateBody = `{"candidates": [{"content": {"role": "model", "parts": [{"text": "four"}]}}]}`

func TestCompleteBuildsGenerateContentRequest(t *testing.T) {
	var captured Request
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		fmt.Fprint(w, candidateBody)
	}))
	defer server.Close()

	client := New(llm.ClientConfig{BaseURL: server.URL, APIKey: "g-key"}, zap.NewNop())
	text, err := client.Complete(context.Background(), &llm.Request{
		Model: "gemini-1.5-pro",
		Messages: []llm.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "what is 2+2"},
		},
		Params: entity.ModelParams{
			"max_tokens": {Enabled: true, Value: 256},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "four" {
		t.Errorf("text = %q", text)
	}

	if gotPath != "/v1beta/models/gemini-1.5-pro:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("key = %q, credential must travel as query parameter", gotKey)
	}

	// All turns collapse into one user content joined by blank lines.
	if len(captured.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(captured.Contents))
	}
	joined := captured.Contents[0].Parts[0].Text
	if !strings.Contains(joined, "be brief") || !strings.Contains(joined, "what is 2+2") {
		t.Errorf("joined prompt = %q", joined)
	}

	if captured.GenerationConfig["max_output_tokens"] != float64(256) {
		t.Errorf("generationConfig = %v, want renamed max_output_tokens", captured.GenerationConfig)
	}
}

func TestStreamFallsBackToComplete(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, candidateBody)
	}))
	defer server.Close()

	client := New(llm.ClientConfig{BaseURL: server.URL, APIKey: "k"}, zap.NewNop())

	var tokens []string
	text, err := client.Stream(context.Background(), &llm.Request{
		Model:    "gemini-1.5-pro",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	}, func(delta string) {
		tokens = append(tokens, delta)
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	if text != "four" {
		t.Errorf("text = %q", text)
	}
	// The whole answer arrives as exactly one token.
	if len(tokens) != 1 || tokens[0] != "four" {
		t.Errorf("tokens = %v, want [four]", tokens)
	}
}

func TestCompleteRejectsEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": []}`)
	}))
	defer server.Close()

	client := New(llm.ClientConfig{BaseURL: server.URL, APIKey: "k"}, zap.NewNop())
	_, err := client.Complete(context.Background(), &llm.Request{
		Model:    "m",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on empty candidates")
	}
}
