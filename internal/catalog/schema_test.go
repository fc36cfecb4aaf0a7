package catalog

import "testing"

func validChallenge() Challenge {
	return Challenge{
		ID:           "sum-to-n",
		Title:        "Sum",
		Instructions: "add",
		TestCases:    []TestCase{{Input: []any{3}, Expected: 6}},
	}
}

func TestChallengeValidateRequiresTestCases(t *testing.T) {
	c := validChallenge()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid challenge, got %v", err)
	}
	c.TestCases = nil
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing test cases error")
	}
}

func TestChallengeValidateRejectsBadID(t *testing.T) {
	c := validChallenge()
	c.ID = "Bad ID"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected id pattern error")
	}
}

func TestChallengeValidateHintLevels(t *testing.T) {
	c := validChallenge()
	c.Hints = []HintSource{{Level: 5, Content: "x"}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected out of range hint level error")
	}
	c.Hints = []HintSource{{Level: 1, Content: "x"}, {Level: 1, Content: "y"}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected duplicate hint level error")
	}
}

func TestChallengeSummaryFallsBackToInstructions(t *testing.T) {
	c := validChallenge()
	c.Instructions = "\n  first line\nsecond"
	if got := c.Summary(); got != "first line" {
		t.Fatalf("expected first instructions line, got %q", got)
	}
}
