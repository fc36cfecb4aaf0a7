package diff

import (
	"bytes"
	"fmt"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// UnifiedPatch renders ops as a single-hunk unified diff. It returns nil when
// nothing changed.
func UnifiedPatch(ops []Op, origName, newName string) ([]byte, error) {
	stats := Count(ops)
	if !stats.Changed() {
		return nil, nil
	}

	var body bytes.Buffer
	for _, op := range ops {
		switch op.Kind {
		case Added:
			body.WriteByte('+')
		case Removed:
			body.WriteByte('-')
		default:
			body.WriteByte(' ')
		}
		body.WriteString(op.Text)
		body.WriteByte('\n')
	}

	origLines := int32(stats.Unchanged + stats.Removed)
	newLines := int32(stats.Unchanged + stats.Added)
	hunk := &godiff.Hunk{
		OrigStartLine: startLine(origLines),
		OrigLines:     origLines,
		NewStartLine:  startLine(newLines),
		NewLines:      newLines,
		Body:          body.Bytes(),
	}
	out, err := godiff.PrintFileDiff(&godiff.FileDiff{
		OrigName: origName,
		NewName:  newName,
		Hunks:    []*godiff.Hunk{hunk},
	})
	if err != nil {
		return nil, fmt.Errorf("print patch: %w", err)
	}
	return out, nil
}

func startLine(count int32) int32 {
	if count == 0 {
		return 0
	}
	return 1
}
