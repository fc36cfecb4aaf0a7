// Package diff aligns two code snapshots line by line using a longest
// common subsequence table.
package diff

import "strings"

type Kind string

const (
	Unchanged Kind = "unchanged"
	Removed   Kind = "removed"
	Added     Kind = "added"
)

// Op is one aligned line. SourceIndex is -1 for added lines and TargetIndex
// is -1 for removed lines.
type Op struct {
	Kind        Kind   `json:"kind"`
	Text        string `json:"text"`
	SourceIndex int    `json:"sourceIndex"`
	TargetIndex int    `json:"targetIndex"`
}

// SplitLines splits on "\n". The empty string has no lines.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Text diffs two full texts.
func Text(before, after string) []Op {
	return Lines(SplitLines(before), SplitLines(after))
}

// Lines runs the O(n*m) LCS alignment. On a mismatch it emits a removal when
// dropping the source line keeps at least as long a common subsequence as
// dropping the target line, so ties go to removed.
func Lines(a, b []string) []Op {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	ops := make([]Op, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, Op{Kind: Unchanged, Text: a[i], SourceIndex: i, TargetIndex: j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, Op{Kind: Removed, Text: a[i], SourceIndex: i, TargetIndex: -1})
			i++
		default:
			ops = append(ops, Op{Kind: Added, Text: b[j], SourceIndex: -1, TargetIndex: j})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, Op{Kind: Removed, Text: a[i], SourceIndex: i, TargetIndex: -1})
	}
	for ; j < m; j++ {
		ops = append(ops, Op{Kind: Added, Text: b[j], SourceIndex: -1, TargetIndex: j})
	}
	return ops
}

// Source rebuilds the before text from unchanged and removed ops.
func Source(ops []Op) string {
	return join(ops, Removed)
}

// Target rebuilds the after text from unchanged and added ops.
func Target(ops []Op) string {
	return join(ops, Added)
}

func join(ops []Op, side Kind) string {
	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		if op.Kind == Unchanged || op.Kind == side {
			lines = append(lines, op.Text)
		}
	}
	return strings.Join(lines, "\n")
}

type Stats struct {
	Added     int
	Removed   int
	Unchanged int
}

func (s Stats) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

func Count(ops []Op) Stats {
	var s Stats
	for _, op := range ops {
		switch op.Kind {
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		default:
			s.Unchanged++
		}
	}
	return s
}
