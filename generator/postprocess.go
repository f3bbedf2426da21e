package generator

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	markdown    = goldmark.New()
	blankLineRe = regexp.MustCompile(`\n{3,}`)
	// htmlTagRe matches tags of common HTML elements only. Other angle
	// bracket text such as "<Lil Poof>" is kept.
	htmlTagRe = regexp.MustCompile(`(?i)</?(?:a|abbr|b|blockquote|br|code|del|div|em|h[1-6]|hr|i|img|ins|li|mark|ol|p|pre|s|small|span|strike|strong|sub|sup|table|td|th|tr|u|ul)(?:\s[^<>]*)?/?>`)
)

// PostProcess 清理模型输出：去掉 Markdown 修饰和包裹的引号。
func PostProcess(raw string) (string, error) {
	out := strings.TrimSpace(raw)
	if out == "" {
		return "", errors.New("model returned empty text")
	}
	out = unquote(PlainText(out))
	if out == "" {
		return "", errors.New("model returned only markup")
	}
	return out, nil
}

// PlainText renders markdown as plain text. Emphasis and headings keep their
// text, links keep their destination, list items keep their markers, escapes
// and entities are decoded and HTML tags of known elements are dropped.
func PlainText(md string) string {
	source := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				value := node.Segment.Value(source)
				if !node.IsRaw() {
					value = unescape(value)
				}
				buf.Write(value)
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(source))
			}
		case *ast.Link:
			if !entering && len(node.Destination) > 0 {
				buf.WriteString(" (")
				buf.Write(node.Destination)
				buf.WriteByte(')')
			}
		case *ast.RawHTML:
			if entering {
				for i := 0; i < node.Segments.Len(); i++ {
					seg := node.Segments.At(i)
					buf.WriteString(stripTags(seg.Value(source)))
				}
			}
		case *ast.HTMLBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.WriteString(stripTags(seg.Value(source)))
				}
				if node.HasClosure() {
					buf.WriteString(stripTags(node.ClosureLine.Value(source)))
				}
			} else {
				endBlock(&buf, "\n\n")
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
			} else {
				endBlock(&buf, "\n\n")
			}
		case *ast.ListItem:
			if entering {
				buf.WriteString(itemMarker(node))
			}
		case *ast.List:
			if _, top := n.Parent().(*ast.Document); top && !entering {
				endBlock(&buf, "\n\n")
			}
		case *ast.Paragraph:
			if !entering {
				if _, list := n.NextSibling().(*ast.List); list {
					endBlock(&buf, "\n")
				} else {
					endBlock(&buf, "\n\n")
				}
			}
		case *ast.Heading:
			if !entering {
				endBlock(&buf, "\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				endBlock(&buf, "\n")
			}
		}
		return ast.WalkContinue, nil
	})

	out := blankLineRe.ReplaceAllString(buf.String(), "\n\n")
	return strings.TrimSpace(out)
}

func unescape(value []byte) []byte {
	value = util.UnescapePunctuations(value)
	value = util.ResolveNumericReferences(value)
	return util.ResolveEntityNames(value)
}

func stripTags(raw []byte) string {
	return htmlTagRe.ReplaceAllString(string(raw), "")
}

// endBlock replaces trailing newlines in buf with sep.
func endBlock(buf *bytes.Buffer, sep string) {
	b := buf.Bytes()
	n := len(b)
	for n > 0 && b[n-1] == '\n' {
		n--
	}
	buf.Truncate(n)
	buf.WriteString(sep)
}

func itemMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok {
		return ""
	}
	if !list.IsOrdered() {
		return string(list.Marker) + " "
	}
	index := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		index++
	}
	return fmt.Sprintf("%d%c ", list.Start+index, list.Marker)
}

func unquote(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			inner := s[len(p[0]) : len(s)-len(p[1])]
			if !strings.ContainsAny(inner, p[0]+p[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}

// Truncate cuts s to at most limit characters, ending in "..." when it had
// to cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return string([]rune(s)[:limit])
	}
	runes := []rune(s)
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
