package devserver

import (
	"fmt"
	"strings"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/diff"
	"codedojo/internal/grading"
)

const maxQuotedLines = 5

func buildExplanation(ch catalog.Challenge, req backend.ExplanationRequest) (backend.Explanation, error) {
	ops := diff.Text(req.BeforeCode, req.AfterCode)
	stats := diff.Count(ops)

	var b strings.Builder
	switch {
	case strings.TrimSpace(req.AfterCode) == "":
		b.WriteString("提出されたコードがありません。")
	case strings.TrimSpace(req.BeforeCode) == "":
		b.WriteString("比較できる以前のコードがないため、最終コードについてのみ説明します。")
	case !stats.Changed():
		b.WriteString("以前のコードから変更はありませんでした。")
	default:
		b.WriteString(fmt.Sprintf("%d 行を削除し、%d 行を追加しました (変更なし %d 行)。", stats.Removed, stats.Added, stats.Unchanged))
	}

	if sum := grading.Summarize(req.TestResults); sum.Total > 0 {
		if sum.AllPassed() {
			b.WriteString(fmt.Sprintf("\nすべてのテスト (%d 件) に合格しています。", sum.Total))
		} else {
			b.WriteString("\nテスト結果: " + sum.String())
		}
	}

	if added := changedLines(ops, diff.Added); len(added) > 0 {
		b.WriteString("\n\n主な変更点\n")
		for _, line := range added {
			b.WriteString("- `" + line + "`\n")
		}
	}

	if notes := strings.TrimSpace(ch.Explanation); notes != "" {
		b.WriteString("\n\n" + notes)
	}

	out := backend.Explanation{Reason: strings.TrimSpace(b.String())}
	if strings.TrimSpace(req.BeforeCode) != "" {
		patch, err := diff.UnifiedPatch(ops, "before.py", "after.py")
		if err != nil {
			return backend.Explanation{}, err
		}
		if len(patch) > 0 {
			out.ExplainDiff = "```diff\n" + string(patch) + "```"
		}
	}
	return out, nil
}

func buildRetireExplanation(ch catalog.Challenge, req backend.ExplanationRequest) backend.RetireExplanation {
	explanation := strings.TrimSpace(ch.Explanation)
	if explanation == "" {
		explanation = "この課題の解説はまだ用意されていません。正解コードを読んで、テストケースごとの動きを確かめてみましょう。"
	}

	var advice []string
	if a := strings.TrimSpace(ch.Advice); a != "" {
		advice = append(advice, a)
	}
	if strings.TrimSpace(req.AfterCode) != "" {
		stats := diff.Count(diff.Text(req.AfterCode, strings.TrimSpace(ch.Solution)))
		if stats.Changed() {
			advice = append(advice, fmt.Sprintf("あなたのコードと正解コードの差分は -%d / +%d 行です。", stats.Removed, stats.Added))
		}
	}
	if first, ok := grading.FirstFailure(req.TestResults); ok {
		advice = append(advice, fmt.Sprintf("テストケース %d の結果 (%s) から見直してみましょう。", first.TestCase, first.Status))
	}

	return backend.RetireExplanation{
		AnswerCode:  ch.Solution,
		Explanation: explanation,
		Advice:      strings.Join(advice, "\n"),
	}
}

func starterNotes(ch catalog.Challenge, difficulty string) string {
	notes := fmt.Sprintf("「%s」の初期コードです。", ch.Title)
	if d := strings.TrimSpace(difficulty); d != "" {
		notes += fmt.Sprintf(" 難易度: %s。", d)
	}
	return notes + " テストを実行して、どこが失敗するか確かめてください。"
}

func changedLines(ops []diff.Op, kind diff.Kind) []string {
	var out []string
	for _, op := range ops {
		if op.Kind != kind {
			continue
		}
		line := strings.TrimSpace(op.Text)
		if line == "" || strings.Contains(line, "`") {
			continue
		}
		out = append(out, line)
		if len(out) == maxQuotedLines {
			break
		}
	}
	return out
}
