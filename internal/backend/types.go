package backend

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"codedojo/internal/catalog"
	"codedojo/internal/grading"
)

type RunRequest struct {
	Code      string             `json:"code"`
	TestCases []catalog.TestCase `json:"testCases"`
}

type HintRequest struct {
	Code         string               `json:"code"`
	Instructions string               `json:"instructions"`
	Examples     string               `json:"examples"`
	TestResults  []grading.TestResult `json:"testResults"`
}

// Level is a hint level as sent by the backend. Numbers and numeric strings
// decode to their value; anything else decodes to NaN.
type Level float64

func (l *Level) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*l = Level(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*l = 0
			return nil
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*l = Level(v)
			return nil
		}
	}
	*l = Level(math.NaN())
	return nil
}

func (l Level) Finite() bool {
	f := float64(l)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type HintCandidate struct {
	Level   Level   `json:"level"`
	Title   *string `json:"title,omitempty"`
	Content string  `json:"content"`
}

type hintResponse struct {
	Hints  []HintCandidate `json:"hints"`
	Error  string          `json:"error,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

type CodeRequest struct {
	Challenge  string             `json:"challenge"`
	Difficulty string             `json:"difficulty,omitempty"`
	TestCases  []catalog.TestCase `json:"testCases"`
}

type CodeResponse struct {
	Code        string `json:"code,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ExplanationRequest struct {
	BeforeCode   string               `json:"beforeCode"`
	AfterCode    string               `json:"afterCode"`
	Instructions string               `json:"instructions"`
	Examples     string               `json:"examples"`
	TestResults  []grading.TestResult `json:"testResults"`
}

type Explanation struct {
	Reason      string          `json:"reason,omitempty"`
	ExplainDiff string          `json:"explain_diff,omitempty"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}

type RetireExplanation struct {
	AnswerCode  string          `json:"answer_code,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Advice      string          `json:"advice,omitempty"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}

type errorBody struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

// detailText flattens a FastAPI style detail, which is either a string or a
// structured validation report.
func detailText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
