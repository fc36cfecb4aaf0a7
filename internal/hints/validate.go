package hints

import (
	"math"
	"sort"
	"strings"

	"codedojo/internal/backend"
)

// Validate filters raw candidates into a usable ladder. Steps run in a fixed
// order: non-finite levels, blank content, title trimming, duplicate levels
// (first wins), then levels outside 1..LevelCount. The survivors are sorted by
// level.
func Validate(cands []backend.HintCandidate) ([]Hint, error) {
	seen := make(map[float64]bool, len(cands))
	out := make([]Hint, 0, len(cands))
	for _, c := range cands {
		if !c.Level.Finite() {
			continue
		}
		f := float64(c.Level)
		if f != math.Trunc(f) {
			continue
		}
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		title := ""
		if c.Title != nil {
			title = strings.TrimSpace(*c.Title)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		if f < 1 || f > LevelCount {
			continue
		}
		out = append(out, Hint{Level: int(f), Title: title, Content: content})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	if len(out) == 0 {
		return nil, ErrNoHints
	}
	return out, nil
}

func candidates(hs []Hint) []backend.HintCandidate {
	out := make([]backend.HintCandidate, 0, len(hs))
	for _, h := range hs {
		title := h.Title
		out = append(out, backend.HintCandidate{Level: backend.Level(h.Level), Title: &title, Content: h.Content})
	}
	return out
}

// sanitize runs a persisted record through the same pipeline.
func sanitize(p Progress) Progress {
	hs, err := Validate(candidates(p.Hints))
	if err != nil {
		return Progress{}
	}
	unlocked := p.UnlockedLevel
	if unlocked < 0 {
		unlocked = 0
	}
	return Progress{UnlockedLevel: unlocked, Hints: hs}
}
