package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/evalgate/evalgate/internal/domain/entity"
)

const judgeSystemPrompt = `You are a strict benchmark judge. Evaluate whether the candidate answer solves the problem.
Respond with a single JSON object and nothing else:
{"verdict": "PASS" or "FAIL", "reasoning": "<short explanation>", "score": <integer 0-100>}`

// Verdict is the judge's decision on one candidate answer.
type Verdict struct {
	Pass      bool
	Score     int
	Reasoning string
}

// Label returns the wire form of the verdict.
func (v *Verdict) Label() string {
	if v.Pass {
		return "PASS"
	}
	return "FAIL"
}

// Judge scores text-problem answers by asking a judge model for a structured
// verdict. HTML problems never reach it; those await human review.
type Judge struct {
	invoker ModelInvoker
	retry   RetryPolicy
	logger  *zap.Logger
}

// NewJudge creates a Judge that calls models through invoker with the given
// retry policy.
func NewJudge(invoker ModelInvoker, retry RetryPolicy, logger *zap.Logger) *Judge {
	return &Judge{
		invoker: invoker,
		retry:   retry,
		logger:  logger.With(zap.String("component", "judge")),
	}
}

// Evaluate asks the judge model to score a candidate answer. The raw judge
// response is always reducible to a Verdict; only transport-level failures
// return an error.
func (j *Judge) Evaluate(ctx context.Context, provider *entity.Provider, model *entity.Model, problem *entity.Problem, candidateOutput string) (*Verdict, error) {
	messages := []ChatMessage{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "user", Content: buildJudgeUserPrompt(problem, candidateOutput)},
	}

	raw, err := j.retry.Do(ctx, j.logger, "judge:"+model.ModelID, func(int) (string, error) {
		return j.invoker.Complete(ctx, provider, model, messages)
	})
	if err != nil {
		return nil, err
	}

	verdict := ParseVerdict(raw)
	j.logger.Info("Judge verdict",
		zap.String("problem_id", problem.ID),
		zap.String("verdict", verdict.Label()),
		zap.Int("score", verdict.Score),
	)
	return verdict, nil
}

func buildJudgeUserPrompt(problem *entity.Problem, candidateOutput string) string {
	var b strings.Builder

	b.WriteString("Problem:\n")
	b.WriteString(problem.Prompt)
	b.WriteString("\n\n")

	if problem.ExpectedAnswer != "" {
		b.WriteString("Expected answer:\n")
		b.WriteString(problem.ExpectedAnswer)
	} else {
		b.WriteString("No expected answer was provided; judge on correctness and quality alone.")
	}
	b.WriteString("\n\n")

	if problem.ScoringHints != "" {
		b.WriteString("Scoring hints:\n")
		b.WriteString(problem.ScoringHints)
		b.WriteString("\n\n")
	}

	b.WriteString("Candidate answer:\n")
	b.WriteString(candidateOutput)
	return b.String()
}

var (
	passWord = regexp.MustCompile(`\bPASS\b`)
	failWord = regexp.MustCompile(`\bFAIL\b`)
)

// ParseVerdict reduces a raw judge response to a Verdict. It first tries the
// requested JSON shape; when that fails it falls back to a textual rule, so a
// chatty judge still yields a usable decision.
func ParseVerdict(raw string) *Verdict {
	trimmed := strings.TrimSpace(raw)

	var parsed struct {
		Verdict   string `json:"verdict"`
		Reasoning string `json:"reasoning"`
		Score     *int   `json:"score"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Verdict != "" {
		pass := strings.EqualFold(parsed.Verdict, "PASS")
		score := 0
		if pass {
			score = 100
		}
		if parsed.Score != nil {
			score = clampScore(*parsed.Score)
		}
		return &Verdict{Pass: pass, Score: score, Reasoning: parsed.Reasoning}
	}

	pass := passWord.MatchString(trimmed) || strings.HasPrefix(trimmed, "YES")
	pass = pass && !failWord.MatchString(trimmed)

	score := 0
	label := "FAIL"
	if pass {
		score = 100
		label = "PASS"
	}

	snippet := trimmed
	if len(snippet) > 200 {
		// Cut on a rune boundary so a multi-byte character is never split.
		cut := 200
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &Verdict{
		Pass:      pass,
		Score:     score,
		Reasoning: fmt.Sprintf("Simple verdict: %s. Full response: %s", label, snippet),
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
