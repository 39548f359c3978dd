package entity

import "time"

// Event kinds published while a run executes.
const (
	EventRunStatus             = "run_status"
	EventModelStarted          = "model_started"
	EventModelStreamingStarted = "model_streaming_started"
	EventCandidateToken        = "candidate_token"
	EventCandidateDone         = "candidate_done"
	EventHTMLCandidateDone     = "html_candidate_done"
	EventJudgeDone             = "judge_done"
	EventModelError            = "model_error"
	EventModelCancelled        = "model_cancelled"
	EventRunCancelled          = "run_cancelled"
)

// RunEvent is one typed progress event of a run. Fields beyond Type/RunID
// are populated per event kind; unset fields are omitted on the wire.
type RunEvent struct {
	Type        string    `json:"type"`
	RunID       string    `json:"run_id"`
	Status      string    `json:"status,omitempty"`
	ProblemID   string    `json:"problem_id,omitempty"`
	ModelID     string    `json:"model_id,omitempty"`
	ModelName   string    `json:"model_name,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Streaming   bool      `json:"streaming,omitempty"`
	Delta       string    `json:"delta,omitempty"`
	Kind        string    `json:"kind,omitempty"` // text | html, on candidate_token
	Text        string    `json:"text,omitempty"`
	HTML        string    `json:"html,omitempty"`
	Verdict     string    `json:"verdict,omitempty"` // PASS | FAIL
	Reasoning   string    `json:"reasoning,omitempty"`
	Score       *int      `json:"score,omitempty"`
	Error       string    `json:"error,omitempty"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
	Timestamp   time.Time `json:"ts"`
}
