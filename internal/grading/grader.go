package grading

import (
	"fmt"
	"strings"
)

// Summarize counts results by outcome. Unknown statuses count as errors.
func Summarize(results []TestResult) Summary {
	out := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			out.Passed++
		case StatusFailure:
			out.Failed++
		case StatusForbidden:
			out.Forbidden++
		default:
			out.Errors++
		}
	}
	return out
}

// CanSubmit is true iff results is non-empty and every entry succeeded.
func CanSubmit(results []TestResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Status != StatusSuccess {
			return false
		}
	}
	return true
}

// FirstFailure returns the first non-success result, if any.
func FirstFailure(results []TestResult) (TestResult, bool) {
	for _, r := range results {
		if r.Status != StatusSuccess {
			return r, true
		}
	}
	return TestResult{}, false
}

func (s Summary) String() string {
	if s.Total == 0 {
		return "no results"
	}
	parts := []string{fmt.Sprintf("%d/%d passed", s.Passed, s.Total)}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d errored", s.Errors))
	}
	if s.Forbidden > 0 {
		parts = append(parts, fmt.Sprintf("%d forbidden", s.Forbidden))
	}
	return strings.Join(parts, ", ")
}

// ComputeScore applies hint, attempt and retire penalties to the base points.
func ComputeScore(req ScoreRequest) Score {
	base := defaultInt(req.BasePoints, 1000)
	hintPenalty := defaultInt(req.HintPenaltyPoints, 100)
	attemptPenalty := defaultInt(req.AttemptPenaltyPoints, 50)

	out := Score{
		BasePoints:     base,
		HintPenalty:    max(0, req.HintsUnlocked) * hintPenalty,
		AttemptPenalty: max(0, req.FailedAttempts) * attemptPenalty,
	}
	if req.Retired {
		out.RetirePenalty = base
	}
	out.TotalPoints = base - out.HintPenalty - out.AttemptPenalty - out.RetirePenalty
	if out.TotalPoints < 0 {
		out.TotalPoints = 0
	}
	return out
}

func defaultInt(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
