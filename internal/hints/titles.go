package hints

import (
	"regexp"
	"strings"
)

var DefaultTitles = map[int]string{
	1: "方向性のヒント",
	2: "キーワードのヒント",
	3: "解法の骨子",
	4: "最終ヒント",
}

var titlePrefix = regexp.MustCompile(`(?i)^(?:ヒント|hint)\s*\d+\s*[:：-]?\s*`)

// DisplayTitle strips a leading "Hint N:" from the authored title and falls
// back to the default title for the level.
func DisplayTitle(h Hint) string {
	t := strings.TrimSpace(titlePrefix.ReplaceAllString(strings.TrimSpace(h.Title), ""))
	if t != "" {
		return t
	}
	if d, ok := DefaultTitles[h.Level]; ok {
		return d
	}
	return "ヒント"
}

// StorageKey is the persisted progress key for a challenge.
func StorageKey(challengeID string) string {
	return "hint-progress-" + challengeID
}
