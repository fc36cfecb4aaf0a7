package diff

type Mode int

const (
	// ModeDiff carries aligned ops.
	ModeDiff Mode = iota
	// ModeNoBaseline shows After unmarked: there was nothing to compare with.
	ModeNoBaseline
	// ModeNoCode means there is no after text to show.
	ModeNoCode
)

type View struct {
	Mode   Mode
	Ops    []Op
	Before string
	After  string
}

// NewView diffs baseline against after. An empty baseline skips diffing.
func NewView(baseline, after string) View {
	switch {
	case after == "":
		return View{Mode: ModeNoCode, Before: baseline}
	case baseline == "":
		return View{Mode: ModeNoBaseline, After: after}
	}
	return View{Mode: ModeDiff, Ops: Text(baseline, after), Before: baseline, After: after}
}

// Baseline picks the comparison snapshot: AI generated code first, then the
// last failing code.
func Baseline(aiGenerated, lastFailing string) string {
	if aiGenerated != "" {
		return aiGenerated
	}
	return lastFailing
}
