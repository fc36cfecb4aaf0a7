package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/diff"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/session"
	"codedojo/internal/state"
)

func ladder() []hints.Hint {
	return []hints.Hint{
		{Level: 1, Content: "one"},
		{Level: 2, Content: "two"},
		{Level: 3, Content: "three"},
		{Level: 4, Content: "four"},
	}
}

func TestHintsStateMarksUnlockedAndVisible(t *testing.T) {
	st := hintsState(hints.Snapshot{
		State:         hints.Ready,
		Hints:         ladder(),
		UnlockedLevel: 2,
		VisibleLevel:  1,
		NextLevel:     3,
	}, true)
	if !st.Open || st.Loading || !st.CanMore {
		t.Fatalf("unexpected flags: %+v", st)
	}
	if st.Body != "one" || st.CanPrev || !st.CanNext {
		t.Fatalf("expected first hint with a step forward, got %+v", st)
	}
	if !st.Levels[1].Unlocked || st.Levels[2].Unlocked || !st.Levels[0].Current {
		t.Fatalf("unexpected level rows: %+v", st.Levels)
	}
}

func TestHintsStateReportsErrors(t *testing.T) {
	st := hintsState(hints.Snapshot{
		State: hints.Idle,
		Err:   &backend.Error{Kind: backend.NetworkFailure, Message: "offline"},
	}, true)
	if st.Err != "offline" || st.CanMore || len(st.Levels) != 0 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestSessionStateStageIsZeroBased(t *testing.T) {
	snap := session.Snapshot{
		Challenge: catalog.Challenge{ID: "x", Title: "X"},
		Active:    true,
		Stage:     session.WriteCode,
		Results: []grading.TestResult{
			{TestCase: 1, Status: grading.StatusSuccess},
			{TestCase: 2, Status: grading.StatusFailure, Message: "expected 2"},
		},
		Summary: grading.Summarize([]grading.TestResult{
			{TestCase: 1, Status: grading.StatusSuccess},
			{TestCase: 2, Status: grading.StatusFailure},
		}),
	}
	snap.Hints.UnlockedLevel = 2
	st := sessionState(snap, "/tmp/x/solution.py", time.Unix(0, 0), true)
	if st.Stage != 1 || len(st.Stages) != len(session.Stages) {
		t.Fatalf("unexpected stage %d of %d", st.Stage, len(st.Stages))
	}
	if !st.CanRetire || !st.Explaining || st.HintsUsed != 2 {
		t.Fatalf("unexpected flags: %+v", st)
	}
	if st.Results[1].Status != "failure" || st.Results[1].Message != "expected 2" {
		t.Fatalf("unexpected result rows: %+v", st.Results)
	}
	if !strings.Contains(st.Summary, "1/2 passed") {
		t.Fatalf("unexpected summary %q", st.Summary)
	}
}

func TestSubmitExplanationWithoutBaseline(t *testing.T) {
	out := session.SubmitOutcome{
		Diff:           diff.NewView("", "a\nb"),
		ExplanationErr: errors.New("boom"),
	}
	st := submitExplanation(out, "a\nb")
	if len(st.Diff) != 2 || st.Diff[0].Marker != " " {
		t.Fatalf("expected plain lines, got %+v", st.Diff)
	}
	if st.Patch != "" {
		t.Fatalf("expected no patch without a baseline")
	}
	if !strings.HasPrefix(st.Notice, "No earlier snapshot") || len(st.Notice) <= len("No earlier snapshot to compare with.") {
		t.Fatalf("expected baseline and error notice, got %q", st.Notice)
	}
}

func TestChallengeRowsAndTotals(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []catalog.Challenge{
		{ID: "a", Title: "A", Instructions: "do a"},
		{ID: "b", Title: "B", Instructions: "do b"},
	}
	progress := map[string]state.ChallengeProgress{
		"a": {ChallengeID: "a", SolvedCount: 1, BestScore: 900, LastPlayedTS: now.Add(-2 * time.Hour)},
	}
	rows := challengeRows(items, progress, now)
	if !rows[0].Solved || rows[0].BestScore != 900 || rows[0].LastPlayed != "2 hours ago" {
		t.Fatalf("unexpected progress row: %+v", rows[0])
	}
	if rows[1].Solved || rows[1].LastPlayed != "" {
		t.Fatalf("unexpected fresh row: %+v", rows[1])
	}
	if got := catalogTotals(rows); got != "2 challenges, 1 solved" {
		t.Fatalf("unexpected totals %q", got)
	}
}

func TestStatsStateOrdersRecentRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := []state.RunRecord{
		{ChallengeID: "old", StartTS: now.Add(-48 * time.Hour), Attempts: 1, Retired: true},
		{ChallengeID: "new", StartTS: now.Add(-time.Minute), Attempts: 3, Submitted: true},
	}
	st := statsState(state.Summary{Runs: 1200, Attempts: 4}, map[string]state.ChallengeProgress{
		"new": {SolvedCount: 1, BestScore: 850},
	}, recent, now)
	if st.Rows[0].Value != "1,200" {
		t.Fatalf("expected grouped digits, got %q", st.Rows[0].Value)
	}
	if st.Rows[6].Value != "850" {
		t.Fatalf("unexpected best score %q", st.Rows[6].Value)
	}
	if !strings.Contains(st.Recent[0], "new") || !strings.Contains(st.Recent[0], "3 runs, submitted") {
		t.Fatalf("unexpected first recent row %q", st.Recent[0])
	}
	if !strings.Contains(st.Recent[1], "1 run, retired") {
		t.Fatalf("unexpected second recent row %q", st.Recent[1])
	}
}
