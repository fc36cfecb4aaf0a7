// Package content splits free-form hint and explanation text into plain
// runs, inline code spans and fenced code blocks.
package content

import (
	"regexp"
	"strings"
	"unicode"
)

type NodeKind int

const (
	Text NodeKind = iota
	InlineCode
	CodeBlock
)

func (k NodeKind) String() string {
	switch k {
	case InlineCode:
		return "inline_code"
	case CodeBlock:
		return "code_block"
	default:
		return "text"
	}
}

type Node struct {
	Kind NodeKind
	// Text holds the plain text, the inline span body or the block code.
	Text     string
	Language string
}

var (
	fencePattern  = regexp.MustCompile("```([a-zA-Z0-9_-]+)?\\n?([\\s\\S]*?)```")
	inlinePattern = regexp.MustCompile("(``[^`]+``|`[^`]+`)")
)

// Parse scans for fenced blocks first; text around them is split into inline
// spans. An unterminated fence stays plain text.
func Parse(s string) []Node {
	var out []Node
	last := 0
	for _, m := range fencePattern.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			out = append(out, parseInline(s[last:m[0]])...)
		}
		lang := ""
		if m[2] >= 0 {
			lang = s[m[2]:m[3]]
		}
		body := s[m[4]:m[5]]
		body = strings.TrimPrefix(body, "\n")
		body = strings.TrimRightFunc(body, isSpace)
		out = append(out, Node{Kind: CodeBlock, Text: body, Language: lang})
		last = m[1]
	}
	if last < len(s) {
		out = append(out, parseInline(s[last:])...)
	}
	return out
}

func parseInline(s string) []Node {
	var out []Node
	last := 0
	for _, m := range inlinePattern.FindAllStringIndex(s, -1) {
		if m[0] > last {
			out = append(out, Node{Kind: Text, Text: s[last:m[0]]})
		}
		seg := s[m[0]:m[1]]
		switch {
		case strings.HasPrefix(seg, "``") && strings.HasSuffix(seg, "``") && len(seg) > 4:
			out = append(out, Node{Kind: InlineCode, Text: seg[2 : len(seg)-2]})
		case strings.HasPrefix(seg, "`") && strings.HasSuffix(seg, "`") && len(seg) > 2:
			out = append(out, Node{Kind: InlineCode, Text: seg[1 : len(seg)-1]})
		default:
			out = append(out, Node{Kind: Text, Text: seg})
		}
		last = m[1]
	}
	if last < len(s) {
		out = append(out, Node{Kind: Text, Text: s[last:]})
	}
	return out
}

// Blocks returns only the fenced code blocks, in order.
func Blocks(nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Kind == CodeBlock {
			out = append(out, n)
		}
	}
	return out
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
