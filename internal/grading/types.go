package grading

import "encoding/json"

// Status is the outcome of one test case as reported by the runner.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusForbidden Status = "forbidden"
	StatusError     Status = "error"
)

// Known reports whether s is one of the four statuses the runner is
// documented to emit. Unknown statuses are still displayed verbatim.
func (s Status) Known() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusForbidden, StatusError:
		return true
	}
	return false
}

type TestResult struct {
	TestCase int             `json:"testCase"`
	Status   Status          `json:"status"`
	Message  string          `json:"message"`
	Input    json.RawMessage `json:"input,omitempty"`
	Expected json.RawMessage `json:"expected,omitempty"`
	Actual   json.RawMessage `json:"actual,omitempty"`
}

func (r TestResult) Passed() bool {
	return r.Status == StatusSuccess
}

type Summary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
	Forbidden int `json:"forbidden"`
}

func (s Summary) AllPassed() bool {
	return s.Total > 0 && s.Passed == s.Total
}

type Score struct {
	BasePoints     int `json:"base_points"`
	HintPenalty    int `json:"hint_penalty"`
	AttemptPenalty int `json:"attempt_penalty"`
	RetirePenalty  int `json:"retire_penalty"`
	TotalPoints    int `json:"total_points"`
}

type ScoreRequest struct {
	BasePoints           int
	HintPenaltyPoints    int
	AttemptPenaltyPoints int
	HintsUnlocked        int
	FailedAttempts       int
	Retired              bool
}
