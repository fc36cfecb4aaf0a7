package content

import (
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

type RenderOptions struct {
	// Width wraps plain text; 0 disables wrapping.
	Width int
	// Color enables syntax highlighting and inline styling.
	Color bool
	// Style is a chroma style name.
	Style string
}

var inlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC857"))

// Render lays nodes out for a terminal. Inline spans keep their backticks
// when color is off so they stay recognisable.
func Render(nodes []Node, opts RenderOptions) string {
	var b strings.Builder
	var para strings.Builder
	flush := func() {
		if para.Len() == 0 {
			return
		}
		text := para.String()
		if opts.Width > 0 {
			text = wordwrap.String(text, opts.Width)
		}
		b.WriteString(text)
		para.Reset()
	}

	for _, n := range nodes {
		switch n.Kind {
		case Text:
			para.WriteString(n.Text)
		case InlineCode:
			if opts.Color {
				para.WriteString(inlineStyle.Render(n.Text))
			} else {
				para.WriteString("`" + n.Text + "`")
			}
		case CodeBlock:
			flush()
			if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
				b.WriteByte('\n')
			}
			code := n.Text
			if opts.Color {
				code = Highlight(code, n.Language, opts.Style)
			}
			b.WriteString(indent.String(strings.TrimRight(code, "\n"), 4))
			b.WriteByte('\n')
		}
	}
	flush()
	return strings.TrimRight(b.String(), "\n")
}

// Highlight returns code with terminal color escapes, or code unchanged when
// the language is unknown to the highlighter.
func Highlight(code, language, style string) string {
	if language == "" {
		language = "python"
	}
	if style == "" {
		style = "monokai"
	}
	var b strings.Builder
	if err := quick.Highlight(&b, code, language, "terminal256", style); err != nil {
		return code
	}
	return b.String()
}
