package service

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseVerdictJSON(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantPass  bool
		wantScore int
	}{
		{
			name:      "pass with score",
			raw:       `{"verdict": "PASS", "reasoning": "correct", "score": 85}`,
			wantPass:  true,
			wantScore: 85,
		},
		{
			name:      "fail with score",
			raw:       `{"verdict": "FAIL", "reasoning": "wrong", "score": 20}`,
			wantPass:  false,
			wantScore: 20,
		},
		{
			name:      "pass without score defaults to 100",
			raw:       `{"verdict": "PASS", "reasoning": "ok"}`,
			wantPass:  true,
			wantScore: 100,
		},
		{
			name:      "fail without score defaults to 0",
			raw:       `{"verdict": "FAIL", "reasoning": "no"}`,
			wantPass:  false,
			wantScore: 0,
		},
		{
			name:      "lowercase verdict accepted",
			raw:       `{"verdict": "pass", "score": 70}`,
			wantPass:  true,
			wantScore: 70,
		},
		{
			name:      "score clamped to 100",
			raw:       `{"verdict": "PASS", "score": 150}`,
			wantPass:  true,
			wantScore: 100,
		},
		{
			name:      "score clamped to 0",
			raw:       `{"verdict": "FAIL", "score": -5}`,
			wantPass:  false,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.raw)
			if v.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v", v.Pass, tt.wantPass)
			}
			if v.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", v.Score, tt.wantScore)
			}
		})
	}
}

func TestParseVerdictFallback(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantPass bool
	}{
		{"bare PASS", "PASS", true},
		{"PASS in sentence", "The answer is correct. PASS", true},
		{"starts with YES", "YES, the answer matches.", true},
		{"bare FAIL", "FAIL", false},
		{"PASS and FAIL means fail", "It could PASS but really it should FAIL", false},
		{"no signal", "The answer is somewhat related.", false},
		{"FAILURE is not the word FAIL", "PASS despite the FAILURES mentioned", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.raw)
			if v.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v", v.Pass, tt.wantPass)
			}
			wantScore := 0
			if tt.wantPass {
				wantScore = 100
			}
			if v.Score != wantScore {
				t.Errorf("Score = %d, want %d", v.Score, wantScore)
			}
			if !strings.HasPrefix(v.Reasoning, "Simple verdict: ") {
				t.Errorf("Reasoning = %q, want fallback prefix", v.Reasoning)
			}
		})
	}
}

func TestParseVerdictFallbackSnippetCap(t *testing.T) {
	long := "FAIL " + strings.Repeat("x", 500)
	v := ParseVerdict(long)

	if v.Pass {
		t.Error("expected fail")
	}
	// prefix + 200-char snippet
	wantPrefix := "Simple verdict: FAIL. Full response: "
	if !strings.HasPrefix(v.Reasoning, wantPrefix) {
		t.Fatalf("Reasoning = %q", v.Reasoning)
	}
	if got := len(v.Reasoning) - len(wantPrefix); got != 200 {
		t.Errorf("snippet length = %d, want 200", got)
	}
}

func TestParseVerdictFallbackSnippetRuneBoundary(t *testing.T) {
	// 197 ASCII bytes followed by two-byte runes puts byte 200 inside the
	// second é, so a byte-indexed cut would split it.
	long := "FAIL " + strings.Repeat("x", 192) + strings.Repeat("é", 100)
	v := ParseVerdict(long)

	wantPrefix := "Simple verdict: FAIL. Full response: "
	if !strings.HasPrefix(v.Reasoning, wantPrefix) {
		t.Fatalf("Reasoning = %q", v.Reasoning)
	}
	snippet := strings.TrimPrefix(v.Reasoning, wantPrefix)
	if !utf8.ValidString(snippet) {
		t.Errorf("snippet is not valid UTF-8: %q", snippet)
	}
	if len(snippet) > 200 {
		t.Errorf("snippet length = %d, want at most 200", len(snippet))
	}
	if !strings.HasSuffix(snippet, "é") {
		t.Errorf("snippet should end on a whole rune, got %q", snippet[len(snippet)-4:])
	}
}

func TestParseVerdictDeterministic(t *testing.T) {
	raw := `{"verdict": "PASS", "reasoning": "same", "score": 60}`
	first := ParseVerdict(raw)
	for i := 0; i < 10; i++ {
		v := ParseVerdict(raw)
		if *v != *first {
			t.Fatalf("verdict differs across calls: %+v vs %+v", v, first)
		}
	}
}

func TestBuildJudgeUserPrompt(t *testing.T) {
	p := testProblem("p1", "set1", "text")
	p.Prompt = "What is 2+2?"
	p.ExpectedAnswer = "4"
	p.ScoringHints = "accept any phrasing"

	prompt := buildJudgeUserPrompt(p, "The answer is 4.")
	for _, want := range []string{"What is 2+2?", "Expected answer:", "4", "Scoring hints:", "accept any phrasing", "Candidate answer:", "The answer is 4."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	p.ExpectedAnswer = ""
	prompt = buildJudgeUserPrompt(p, "something")
	if !strings.Contains(prompt, "No expected answer was provided") {
		t.Error("prompt should note the missing expected answer")
	}
	if strings.Contains(prompt, "Expected answer:") {
		t.Error("prompt should not carry an empty expected answer section")
	}
}
