package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"

	"codedojo/internal/content"
)

func (r *Root) renderChallenges() string {
	w, h := r.cols, r.rows
	title := "Code Dojo - Challenges"
	if src := strings.TrimSpace(r.catalog.Source); src != "" {
		title += " | " + src
	}
	header := r.theme.Header.Width(max(1, w)).Render(trimForWidth(title, max(1, w-2)))

	lines := make([]string, 0, len(r.catalog.Items))
	for i, item := range r.catalog.Items {
		prefix := "  "
		if i == r.listIndex {
			prefix = "> "
		}
		mark := " "
		if item.Solved {
			mark = r.glyph("✓", "*")
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", prefix, mark, item.Title))
	}
	switch {
	case r.catalog.Loading:
		lines = []string{strings.TrimSpace(r.spin.View()) + " Loading challenges..."}
	case len(lines) == 0:
		lines = []string{"No challenges available.", "", "r: Refresh"}
	}
	bodyH := max(8, h-2)
	left := r.drawPanel("Challenges", lines, min(44, max(28, w/3)), bodyH)
	right := r.drawPanel("Details", r.challengeDetail(max(10, w-lipgloss.Width(left)-2)), max(20, w-lipgloss.Width(left)), bodyH)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	if r.setupMsg != "" {
		setup := r.drawPanel("Setup", wrapLines(strings.TrimSpace(r.setupMsg+"\n\n"+r.setupDetails), min(96, w)-4), min(100, w), 8)
		body = composeOverlayAt(body, setup, w, bodyH, max(0, bodyH-8), 0)
	}
	return header + "\n" + body + "\n" + r.statusLine(r.help.View(r.listKeys))
}

func (r *Root) challengeDetail(width int) []string {
	if len(r.catalog.Items) == 0 {
		return []string{r.catalog.Totals}
	}
	item := r.catalog.Items[wrapIndex(r.listIndex, len(r.catalog.Items))]
	var lines []string
	lines = append(lines, item.Title, "")
	if item.Difficulty != "" {
		lines = append(lines, "Difficulty: "+item.Difficulty)
	}
	if item.Solved {
		lines = append(lines, fmt.Sprintf("Solved  best score %d", item.BestScore))
	}
	if item.LastPlayed != "" {
		lines = append(lines, "Last played "+item.LastPlayed)
	}
	if s := strings.TrimSpace(item.Summary); s != "" {
		lines = append(lines, "")
		lines = append(lines, wrapLines(s, width)...)
	}
	if r.catalog.Totals != "" {
		lines = append(lines, "", r.catalog.Totals)
	}
	return lines
}

const (
	minSessionCols  = 72
	minSessionRows  = 20
	wideSessionCols = 110
	wideSessionRows = 28
)

// sessionLayout places the problem beside the code when there is room for
// both, and otherwise stacks code over test results.
func sessionLayout(cols, rows int) LayoutMode {
	switch {
	case cols < minSessionCols || rows < minSessionRows:
		return LayoutTooSmall
	case cols >= wideSessionCols && rows >= wideSessionRows:
		return LayoutWide
	}
	return LayoutMedium
}

func (r *Root) renderSession() string {
	w, h := r.cols, r.rows
	mode := sessionLayout(w, h)
	r.layout = mode
	if mode == LayoutTooSmall {
		msg := []string{
			"Terminal too small",
			fmt.Sprintf("Current: %dx%d", w, h),
			fmt.Sprintf("Minimum: %dx%d", minSessionCols, minSessionRows),
			"Resize the terminal to continue.",
		}
		panel := r.drawPanel("Resize Required", msg, min(60, w), min(8, h))
		return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, panel)
	}

	header := r.headerText()
	stage := r.stageLine()
	bodyH := max(6, h-3)

	var body string
	if mode == LayoutWide {
		problemW := min(64, w*2/5)
		rightW := w - problemW
		problem := r.drawPanel("Problem", r.problemLines(problemW-4), problemW, bodyH)
		codeH := bodyH * 3 / 5
		code := r.drawPanel(r.codeTitle(), r.codeLines(rightW-2), rightW, codeH)
		tests := r.drawPanel("Tests", r.testLines(rightW-4), rightW, bodyH-codeH)
		body = lipgloss.JoinHorizontal(lipgloss.Top, problem, lipgloss.JoinVertical(lipgloss.Left, code, tests))
	} else {
		codeH := bodyH / 2
		code := r.drawPanel(r.codeTitle(), r.codeLines(w-2), w, codeH)
		tests := r.drawPanel("Tests", r.testLines(w-4), w, bodyH-codeH)
		body = lipgloss.JoinVertical(lipgloss.Left, code, tests)
	}
	return header + "\n" + stage + "\n" + body + "\n" + r.statusLine(r.help.View(r.keys))
}

func (r *Root) headerText() string {
	s := r.session
	elapsed := time.Duration(0)
	if !s.StartedAt.IsZero() {
		elapsed = time.Since(s.StartedAt).Truncate(time.Second)
	}
	parts := []string{"Code Dojo"}
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	if s.Difficulty != "" {
		parts = append(parts, s.Difficulty)
	}
	parts = append(parts, elapsed.String())
	if s.HintsUsed > 0 {
		parts = append(parts, fmt.Sprintf("hints %d", s.HintsUsed))
	}
	txt := strings.Join(parts, " | ")
	if r.debug {
		txt = fmt.Sprintf("%s | %dx%d %v", txt, r.cols, r.rows, r.layout)
	}
	return r.theme.Header.Width(max(1, r.cols)).Render(trimForWidth(txt, max(1, r.cols-2)))
}

func (r *Root) stageLine() string {
	stages := r.session.Stages
	if len(stages) == 0 {
		return ""
	}
	idx := min(max(0, r.session.Stage), len(stages)-1)
	labels := make([]string, len(stages))
	for i, label := range stages {
		switch {
		case i == idx:
			labels[i] = "[" + label + "]"
		case i < idx:
			labels[i] = r.glyph("✓", "v") + label
		default:
			labels[i] = label
		}
	}
	bar := r.stageBar
	bar.SetWidth(min(24, max(8, r.cols/6)))
	pct := float64(idx+1) / float64(len(stages))
	line := bar.ViewAs(pct) + "  " + strings.Join(labels, " > ")
	return trimForWidth(line, max(1, r.cols))
}

func (r *Root) codeTitle() string {
	title := "Code"
	if r.session.CodePath != "" {
		title += " - " + r.session.CodePath
	}
	if r.session.Generating {
		title += " (generating " + strings.TrimSpace(r.spin.View()) + ")"
	}
	return title
}

func (r *Root) problemLines(width int) []string {
	md := strings.TrimSpace(r.session.Instructions)
	if ex := strings.TrimSpace(r.session.Examples); ex != "" {
		md += "\n\n### Examples\n\n" + ex
	}
	if md == "" {
		return []string{"No instructions for this challenge."}
	}
	return strings.Split(r.renderMarkdown(md, width), "\n")
}

func (r *Root) codeLines(width int) []string {
	code := strings.TrimRight(r.session.Code, "\n")
	if strings.TrimSpace(code) == "" {
		return []string{
			"No code yet.",
			"",
			"F3 opens your editor, F4 asks for generated starter code.",
		}
	}
	src := strings.Split(code, "\n")
	gutter := len(fmt.Sprint(len(src)))
	lines := make([]string, 0, len(src)+3)
	for i, line := range src {
		lines = append(lines, trimForWidth(fmt.Sprintf("%*d  %s", gutter, i+1, line), width))
	}
	if notes := strings.TrimSpace(r.session.Notes); notes != "" {
		lines = append(lines, "")
		lines = append(lines, wrapLines(notes, width-2)...)
	}
	return lines
}

func (r *Root) testLines(width int) []string {
	s := r.session
	var lines []string
	switch {
	case s.Running:
		lines = append(lines, strings.TrimSpace(r.spin.View())+" Running tests...")
	case s.Explaining:
		lines = append(lines, strings.TrimSpace(r.spin.View())+" Preparing explanation...")
	case s.Summary != "":
		lines = append(lines, s.Summary)
	default:
		lines = append(lines, "F5 runs the test cases.")
	}
	for _, res := range s.Results {
		icon := r.glyph("○", "o")
		switch res.Status {
		case "success":
			icon = r.glyph("✓", "v")
		case "failure", "error", "forbidden":
			icon = r.glyph("✗", "x")
		}
		first, _, _ := strings.Cut(strings.TrimSpace(res.Message), "\n")
		lines = append(lines, trimForWidth(fmt.Sprintf("%s #%d %s  %s", icon, res.Case, res.Status, first), width))
	}
	if s.CanSubmit {
		lines = append(lines, "", "All tests pass. F6 submits.")
	} else if s.FailedRuns > 0 && len(s.Results) > 0 && !s.Running {
		if first, ok := firstFailing(s.Results); ok {
			lines = append(lines, "")
			lines = append(lines, wrapLines(first.Message, width)...)
		}
	}
	return lines
}

func firstFailing(rows []ResultRow) (ResultRow, bool) {
	for _, row := range rows {
		if row.Status != "success" {
			return row, true
		}
	}
	return ResultRow{}, false
}

func (r *Root) statusLine(keys string) string {
	if r.statusFlash != "" {
		keys += " | " + r.statusFlash
	}
	return r.theme.Status.Width(max(1, r.cols)).Render(trimForWidth(keys, max(1, r.cols-2)))
}

func (r *Root) renderMarkdown(md string, width int) string {
	width = max(20, width)
	if r.markdown == nil || r.mdWidth != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			r.logger.Debug("ui.markdown_unavailable", "err", err)
			return wordwrap.String(md, width)
		}
		r.markdown = renderer
		r.mdWidth = width
	}
	out, err := r.markdown.Render(md)
	if err != nil {
		return wordwrap.String(md, width)
	}
	return strings.Trim(out, "\n")
}

type overlaySpec struct {
	title  string
	body   []string
	footer []string
	width  int
	// scrollable bodies are windowed by r.scroll.
	scrollable bool
}

func (r *Root) renderOverlay() (string, int) {
	spec, ok := r.overlaySpec(r.topOverlay())
	if !ok {
		return "", 0
	}
	maxH := max(8, r.rows-4)
	room := maxH - 2 - len(spec.footer)
	body := spec.body
	if spec.scrollable && len(body) > room {
		r.scroll = min(r.scroll, len(body)-room)
		body = body[r.scroll : r.scroll+room]
	}
	lines := append(append([]string(nil), body...), spec.footer...)
	height := min(len(lines)+2, maxH)
	panel := r.drawPanel(spec.title, lines, spec.width, height)

	// Overlays slide down from above the screen as they open.
	center := (r.rows - height) / 2
	offset := int(math.Round((1 - r.overlayPos) * float64(center+height)))
	return panel, -offset
}

func (r *Root) overlaySpec(top string) (overlaySpec, bool) {
	w := min(max(56, r.cols-12), r.cols)
	inner := w - 4
	switch top {
	case "confirm":
		buttons := []string{"Cancel", "Reveal"}
		line := ""
		for i, b := range buttons {
			if i == r.confirmIndex {
				line += "[> " + b + " <]  "
			} else {
				line += "   " + b + "     "
			}
		}
		return overlaySpec{
			title: "Final hint",
			body: []string{
				"The final hint shows most of the solution.",
				"Reveal it now?",
				"",
				strings.TrimRight(line, " "),
			},
			footer: []string{"", "Tab: Switch  Enter: Select  Esc: Cancel"},
			width:  min(56, r.cols),
		}, true
	case "hints":
		return overlaySpec{
			title:  "Hints",
			body:   r.hintBody(inner),
			footer: []string{"", r.hintButtonRow(), "Tab/Shift+Tab: Move  Enter: Select  Esc: Close"},
			width:  w,
		}, true
	case "explanation":
		e := r.explanation
		var body []string
		if e.Score != "" {
			body = append(body, e.Score, "")
		}
		if e.Notice != "" {
			body = append(body, wrapLines(e.Notice, inner)...)
			body = append(body, "")
		}
		for _, d := range e.Diff {
			body = append(body, trimForWidth(d.Marker+" "+d.Text, inner))
		}
		if len(e.Diff) > 0 {
			body = append(body, "")
		}
		if len(e.Body) > 0 {
			body = append(body, strings.Split(content.Render(e.Body, content.RenderOptions{Width: inner}), "\n")...)
		}
		return overlaySpec{
			title:      firstNonEmpty(e.Title, "Explanation"),
			body:       body,
			footer:     []string{"", "y: Copy code  p: Copy patch  Up/Down: Scroll  Esc: Close"},
			width:      w,
			scrollable: true,
		}, true
	case "stats":
		var body []string
		for _, row := range r.stats.Rows {
			body = append(body, fmt.Sprintf("%-18s %s", row.Label, row.Value))
		}
		if len(r.stats.Recent) > 0 {
			body = append(body, "", "Recent runs")
			for _, line := range r.stats.Recent {
				body = append(body, "  "+trimForWidth(line, inner-2))
			}
		}
		if len(body) == 0 {
			body = []string{"No runs recorded yet."}
		}
		return overlaySpec{title: "Stats", body: body, footer: []string{"", "Esc: Close"}, width: w}, true
	case "problem":
		return overlaySpec{
			title:      firstNonEmpty(r.session.Title, "Problem"),
			body:       r.problemLines(inner),
			footer:     []string{"", "Up/Down: Scroll  F2/Esc: Close"},
			width:      w,
			scrollable: true,
		}, true
	case "menu":
		items := r.menuItems()
		body := make([]string, len(items))
		for i, item := range items {
			prefix := "  "
			if i == r.menuIndex {
				prefix = "> "
			}
			body[i] = prefix + item.Label
		}
		return overlaySpec{title: "Menu", body: body, footer: []string{"", "Enter: Select  Esc: Close"}, width: min(40, r.cols)}, true
	}
	return overlaySpec{}, false
}

func (r *Root) hintBody(width int) []string {
	h := r.hints
	var body []string
	if len(h.Levels) > 0 {
		var ladder []string
		for _, lv := range h.Levels {
			mark := r.glyph("🔒", "#")
			if lv.Unlocked {
				mark = fmt.Sprint(lv.Level)
			}
			if lv.Current {
				mark = "[" + mark + "]"
			}
			ladder = append(ladder, mark)
		}
		body = append(body, "Levels: "+strings.Join(ladder, " "), "")
	}
	switch {
	case h.Loading && len(h.Levels) == 0:
		body = append(body, strings.TrimSpace(r.spin.View())+" Loading hints...")
	case h.Title != "" || h.Body != "":
		body = append(body, h.Title)
		body = append(body, wrapLines(h.Body, width)...)
		if h.Loading {
			body = append(body, "", strings.TrimSpace(r.spin.View())+" Loading...")
		}
	case h.Err == "":
		body = append(body, "No hints yet.")
	}
	if h.Err != "" {
		body = append(body, "")
		body = append(body, wrapLines(h.Err, width)...)
	}
	return body
}

func (r *Root) hintButtonRow() string {
	var parts []string
	for _, b := range r.hintButtons() {
		if b == r.hintFocus {
			parts = append(parts, "[> "+b.label()+" <]")
		} else {
			parts = append(parts, "   "+b.label()+"   ")
		}
	}
	return strings.Join(parts, " ")
}

func (r *Root) glyph(unicode, ascii string) string {
	if r.ascii {
		return ascii
	}
	return unicode
}

func (r *Root) drawPanel(title string, lines []string, width, height int) string {
	width = max(4, width)
	height = max(3, height)
	innerW := width - 2
	innerH := height - 2

	h, v := "─", "│"
	tl, tr, bl, br := "┌", "┐", "└", "┘"
	if r.ascii {
		h, v = "-", "|"
		tl, tr, bl, br = "+", "+", "+", "+"
	}

	top := tl + strings.Repeat(h, innerW) + tr
	if title != "" && innerW > 2 {
		t := trimForWidth(" "+title+" ", innerW-1)
		top = tl + t + strings.Repeat(h, max(0, innerW-ansi.StringWidth(t))) + tr
	}

	out := make([]string, 0, height)
	out = append(out, r.theme.PanelBorder.Render(top))
	for row := 0; row < innerH; row++ {
		line := ""
		if row < len(lines) {
			line = lines[row]
		}
		out = append(out, r.theme.PanelBorder.Render(v)+r.theme.PanelBody.Render(padCells(line, innerW))+r.theme.PanelBorder.Render(v))
	}
	out = append(out, r.theme.PanelBorder.Render(bl+strings.Repeat(h, innerW)+br))
	return strings.Join(out, "\n")
}

func wrapLines(s string, width int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(wordwrap.String(s, max(10, width)), "\n")
}

func wrapIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	if i < 0 {
		i = n - 1
	}
	if i >= n {
		i = 0
	}
	return i
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// padCells truncates or pads s to exactly width terminal cells.
func padCells(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\t", "    ")
	if ansi.StringWidth(s) > width {
		s = ansi.Truncate(s, width, "")
	}
	if pad := width - ansi.StringWidth(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func composeOverlaySlide(base, overlay string, cols, rows, rowOffset int) string {
	lines := strings.Split(strings.TrimRight(overlay, "\n"), "\n")
	ow := 1
	for _, line := range lines {
		ow = max(ow, ansi.StringWidth(line))
	}
	ow = min(ow, cols)
	oh := min(len(lines), rows)
	return composeOverlayAt(base, overlay, cols, rows, (rows-oh)/2+rowOffset, (cols-ow)/2)
}

// composeOverlayAt paints overlay over base with its top-left cell at
// (startRow, startCol). Rows outside the screen are clipped.
func composeOverlayAt(base, overlay string, cols, rows, startRow, startCol int) string {
	if cols <= 0 || rows <= 0 {
		return base
	}
	base = ansi.Strip(base)
	overlay = ansi.Strip(overlay)
	baseLines := strings.Split(base, "\n")
	if len(baseLines) < rows {
		baseLines = append(baseLines, make([]string, rows-len(baseLines))...)
	}
	for i := 0; i < rows; i++ {
		baseLines[i] = padCells(baseLines[i], cols)
	}

	overlayLines := strings.Split(strings.TrimRight(overlay, "\n"), "\n")
	ow := 1
	for _, line := range overlayLines {
		ow = max(ow, ansi.StringWidth(line))
	}
	startCol = max(0, startCol)
	ow = min(ow, cols-startCol)
	if ow <= 0 {
		return strings.Join(baseLines[:rows], "\n")
	}

	for i, line := range overlayLines {
		row := startRow + i
		if row < 0 || row >= rows {
			continue
		}
		left := padCells(ansi.Truncate(baseLines[row], startCol, ""), startCol)
		right := ansi.TruncateLeft(baseLines[row], startCol+ow, "")
		baseLines[row] = padCells(left+padCells(line, ow)+right, cols)
	}
	return strings.Join(baseLines[:rows], "\n")
}

func trimForWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(ansi.Strip(s), "\n", " ")
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
