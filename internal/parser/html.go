package parser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlToText flattens an HTML document into plain text. Script, style and
// head content is dropped and block-level elements become line breaks.
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	hidden := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeText(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if isHidden(a) && tt == html.StartTagToken {
				hidden++
				continue
			}
			if isBlock(a) {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if isHidden(a) {
				if hidden > 0 {
					hidden--
				}
				continue
			}
			if isBlock(a) {
				b.WriteByte('\n')
			}

		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(a atom.Atom) bool {
	switch a {
	case atom.Head, atom.Script, atom.Style, atom.Title:
		return true
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Hr:
		return true
	}
	return false
}

// normalizeText collapses runs of whitespace inside each line, trims the
// lines and keeps at most one blank line between paragraphs.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
