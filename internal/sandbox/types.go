package sandbox

import "time"

type EngineInfo struct {
	Name    string
	Path    string
	Version string
}

type Options struct {
	// Mode is "auto" (python3, then python) or the interpreter to use.
	Mode string
	// Timeout bounds one test case, interpreter start-up included.
	Timeout time.Duration
	// MaxOutput caps the bytes read back from the interpreter.
	MaxOutput int64
	// Env is passed to the interpreter in place of the process environment.
	Env []string
}

// caseRequest is written to the harness on stdin.
type caseRequest struct {
	Code     string `json:"code"`
	Input    []any  `json:"input"`
	Expected any    `json:"expected"`
}

// caseReply is the single JSON object the harness prints.
type caseReply struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Actual   string `json:"actual"`
	Expected string `json:"expected"`
}
