package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/content"
	"codedojo/internal/diff"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/session"
	"codedojo/internal/state"
	"codedojo/internal/ui"
)

func stageLabels() []string {
	out := make([]string, 0, len(session.Stages))
	for _, s := range session.Stages {
		out = append(out, s.Label())
	}
	return out
}

func resultRows(results []grading.TestResult) []ui.ResultRow {
	rows := make([]ui.ResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, ui.ResultRow{Case: r.TestCase, Status: string(r.Status), Message: r.Message})
	}
	return rows
}

func sessionState(snap session.Snapshot, codePath string, startedAt time.Time, explaining bool) ui.SessionState {
	ch := snap.Challenge
	sum := ""
	if len(snap.Results) > 0 {
		sum = snap.Summary.String()
	}
	return ui.SessionState{
		ChallengeID:  ch.ID,
		Title:        ch.Title,
		Difficulty:   ch.Difficulty,
		Instructions: ch.Instructions,
		Examples:     ch.Examples,
		Stage:        int(snap.Stage) - int(session.UnderstandProblem),
		Stages:       stageLabels(),
		Code:         snap.Code,
		CodePath:     codePath,
		Notes:        snap.GeneratedNotes,
		Results:      resultRows(snap.Results),
		Summary:      sum,
		CanSubmit:    snap.CanSubmit,
		CanRetire:    snap.Active && snap.Stage >= session.WriteCode,
		Running:      snap.Running,
		Generating:   snap.Generating,
		Explaining:   explaining,
		HintsUsed:    snap.Hints.UnlockedLevel,
		FailedRuns:   snap.FailedRuns,
		StartedAt:    startedAt,
	}
}

func hintsState(snap hints.Snapshot, open bool) ui.HintsState {
	out := ui.HintsState{
		Open:         open,
		Loading:      snap.State == hints.Loading,
		ConfirmFinal: snap.ConfirmPending,
		CanMore:      snap.NextLevel > 0,
	}
	if snap.Err != nil {
		out.Err = backend.UserMessage(snap.Err)
	}
	unlocked := snap.Unlocked()
	for _, h := range snap.Hints {
		out.Levels = append(out.Levels, ui.HintLevelRow{
			Level:    h.Level,
			Title:    hints.DisplayTitle(h),
			Unlocked: h.Level <= snap.UnlockedLevel,
			Current:  h.Level == snap.VisibleLevel,
		})
	}
	if active, ok := snap.Active(); ok {
		out.Title = hints.DisplayTitle(active)
		out.Body = active.Content
	}
	for _, h := range unlocked {
		if h.Level < snap.VisibleLevel {
			out.CanPrev = true
		}
		if h.Level > snap.VisibleLevel {
			out.CanNext = true
		}
	}
	return out
}

func diffLines(v diff.View) []ui.DiffLine {
	switch v.Mode {
	case diff.ModeNoCode:
		return nil
	case diff.ModeNoBaseline:
		lines := diff.SplitLines(v.After)
		out := make([]ui.DiffLine, 0, len(lines))
		for _, l := range lines {
			out = append(out, ui.DiffLine{Marker: " ", Text: l})
		}
		return out
	}
	out := make([]ui.DiffLine, 0, len(v.Ops))
	for _, op := range v.Ops {
		marker := " "
		switch op.Kind {
		case diff.Added:
			marker = "+"
		case diff.Removed:
			marker = "-"
		}
		out = append(out, ui.DiffLine{Marker: marker, Text: op.Text})
	}
	return out
}

func patchText(v diff.View, name string) string {
	if v.Mode != diff.ModeDiff {
		return ""
	}
	b, err := diff.UnifiedPatch(v.Ops, "a/"+name, "b/"+name)
	if err != nil {
		return ""
	}
	return string(b)
}

func submitExplanation(out session.SubmitOutcome, code string) ui.ExplanationState {
	st := ui.ExplanationState{
		Open:  true,
		Title: "Submitted",
		Score: fmt.Sprintf("%d pts  (%s)", out.Score.TotalPoints, out.Summary.String()),
		Diff:  diffLines(out.Diff),
		Code:  code,
		Patch: patchText(out.Diff, "solution.py"),
	}
	switch out.Diff.Mode {
	case diff.ModeNoBaseline:
		st.Notice = "No earlier snapshot to compare with."
	case diff.ModeNoCode:
		st.Notice = "No code to show."
	}
	if out.ExplanationErr != nil {
		st.Notice = strings.TrimSpace(st.Notice + " " + backend.UserMessage(out.ExplanationErr))
	}
	var body []content.Node
	body = append(body, out.Reason...)
	if len(out.Reason) > 0 && len(out.DiffNotes) > 0 {
		body = append(body, content.Node{Kind: content.Text, Text: "\n\n"})
	}
	body = append(body, out.DiffNotes...)
	st.Body = body
	return st
}

func retireExplanation(out session.RetireOutcome) ui.ExplanationState {
	return ui.ExplanationState{
		Open:  true,
		Title: "Answer and explanation",
		Diff:  diffLines(out.Diff),
		Body:  out.Nodes,
		Code:  strings.TrimSpace(out.Raw.AnswerCode),
		Patch: patchText(out.Diff, "solution.py"),
	}
}

func challengeRows(items []catalog.Challenge, progress map[string]state.ChallengeProgress, now time.Time) []ui.ChallengeRow {
	rows := make([]ui.ChallengeRow, 0, len(items))
	for _, ch := range items {
		row := ui.ChallengeRow{
			ID:         ch.ID,
			Title:      ch.Title,
			Difficulty: ch.Difficulty,
			Summary:    ch.Summary(),
		}
		if p, ok := progress[ch.ID]; ok {
			row.Solved = p.SolvedCount > 0
			row.BestScore = p.BestScore
			if !p.LastPlayedTS.IsZero() {
				row.LastPlayed = humanize.RelTime(p.LastPlayedTS, now, "ago", "from now")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func catalogTotals(rows []ui.ChallengeRow) string {
	solved := 0
	for _, r := range rows {
		if r.Solved {
			solved++
		}
	}
	return fmt.Sprintf("%d challenges, %d solved", len(rows), solved)
}

func statsState(sum state.Summary, progress map[string]state.ChallengeProgress, recent []state.RunRecord, now time.Time) ui.StatsState {
	best := 0
	solved := 0
	for _, p := range progress {
		best = max(best, p.BestScore)
		if p.SolvedCount > 0 {
			solved++
		}
	}
	st := ui.StatsState{
		Open: true,
		Rows: []ui.StatRow{
			{Label: "Sessions", Value: humanize.Comma(int64(sum.Runs))},
			{Label: "Test runs", Value: humanize.Comma(int64(sum.Attempts))},
			{Label: "Passing runs", Value: humanize.Comma(int64(sum.Passes))},
			{Label: "Submitted", Value: humanize.Comma(int64(sum.Submits))},
			{Label: "Retired", Value: humanize.Comma(int64(sum.Retires))},
			{Label: "Challenges solved", Value: humanize.Comma(int64(solved))},
			{Label: "Best score", Value: humanize.Comma(int64(best))},
		},
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].StartTS.After(recent[j].StartTS) })
	for _, r := range recent {
		outcome := "in progress"
		switch {
		case r.Submitted:
			outcome = "submitted"
		case r.Retired:
			outcome = "retired"
		case r.LastPassed:
			outcome = "passing"
		}
		st.Recent = append(st.Recent, fmt.Sprintf("%s  %s  %s, %s",
			humanize.RelTime(r.StartTS, now, "ago", "from now"),
			r.ChallengeID,
			english.Plural(r.Attempts, "run", "runs"),
			outcome,
		))
	}
	return st
}
