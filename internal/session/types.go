package session

import (
	"errors"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/content"
	"codedojo/internal/diff"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
)

// Stage is the workflow step. It only moves forward until the next Enter.
type Stage int

const (
	UnderstandProblem Stage = iota + 1
	WriteCode
	RunTests
	Submit
)

func (s Stage) String() string {
	switch s {
	case UnderstandProblem:
		return "understand"
	case WriteCode:
		return "write"
	case RunTests:
		return "run"
	case Submit:
		return "submit"
	default:
		return "unknown"
	}
}

// Label is the step name shown in the progress bar.
func (s Stage) Label() string {
	switch s {
	case UnderstandProblem:
		return "問題を理解"
	case WriteCode:
		return "コード作成"
	case RunTests:
		return "テスト実行"
	case Submit:
		return "提出"
	default:
		return ""
	}
}

var Stages = []Stage{UnderstandProblem, WriteCode, RunTests, Submit}

var (
	ErrNoChallenge       = errors.New("no active challenge")
	ErrStale             = errors.New("session moved to another challenge")
	ErrCannotSubmit      = errors.New("submit requires every test to pass")
	ErrRetireUnavailable = errors.New("retire is available from the write code stage")
	ErrNoContext         = errors.New("nothing to explain")
	ErrRunInFlight       = errors.New("a test run is already in progress")
	ErrEmptyGeneration   = errors.New("backend returned no code")
	ErrEmptyExplanation  = errors.New("backend returned an empty explanation")
)

type RunReport struct {
	Results []grading.TestResult
	Summary grading.Summary
	Dropped int
	// Err is the transport failure, if any. It is also reported as the last
	// result.
	Err error
}

type SubmitOutcome struct {
	Summary     grading.Summary
	Score       grading.Score
	Diff        diff.View
	Explanation backend.Explanation
	Reason      []content.Node
	DiffNotes   []content.Node
	// ExplanationErr is set when the explanation could not be generated;
	// the submission itself still counts.
	ExplanationErr error
}

type RetireOutcome struct {
	Raw      backend.RetireExplanation
	Markdown string
	Nodes    []content.Node
	Diff     diff.View
}

type Snapshot struct {
	Challenge       catalog.Challenge
	Active          bool
	Stage           Stage
	Code            string
	Results         []grading.TestResult
	Summary         grading.Summary
	CanSubmit       bool
	Running         bool
	Generating      bool
	HintOpen        bool
	AIGeneratedCode string
	LastFailingCode string
	GeneratedNotes  string
	FailedRuns      int
	RunID           int64
	Hints           hints.Snapshot
}
