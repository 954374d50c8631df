package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// MarkdownSource handles Markdown files using goldmark. Blocks and inlines
// map onto XHTML element names; top-level headings open nested section
// elements by level.
type MarkdownSource struct{}

func (s *MarkdownSource) Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	e := newEmitter(ctx, h)
	e.start("document", doctree.Attr("title", Title(filename)))
	secs := newSections(e)

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if e.err != nil {
			return ast.WalkStop, e.err
		}
		switch node := n.(type) {
		case *ast.Document, *ast.TextBlock:
			return ast.WalkContinue, nil
		case *ast.Heading:
			if entering {
				title := inlineText(node, src)
				if _, top := node.Parent().(*ast.Document); top {
					secs.heading(node.Level, title)
				} else {
					e.leaf(fmt.Sprintf("h%d", node.Level), title)
				}
			}
			return ast.WalkSkipChildren, e.err
		case *ast.Text:
			if entering {
				e.text(string(node.Segment.Value(src)))
				if node.SoftLineBreak() || node.HardLineBreak() {
					e.text("\n")
				}
			}
			return ast.WalkContinue, e.err
		case *ast.String:
			if entering {
				e.text(string(node.Value))
			}
			return ast.WalkContinue, e.err
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				var attrs []doctree.Attribute
				if f, ok := node.(*ast.FencedCodeBlock); ok {
					if lang := f.Language(src); len(lang) > 0 {
						attrs = append(attrs, doctree.Attr("lang", string(lang)))
					}
				}
				e.leaf("pre", linesText(n, src), attrs...)
			}
			return ast.WalkSkipChildren, e.err
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			if entering {
				e.start("img",
					doctree.Attr("src", string(node.Destination)),
					doctree.Attr("alt", inlineText(node, src)))
				e.end()
			}
			return ast.WalkSkipChildren, e.err
		case *ast.AutoLink:
			if entering {
				e.start("a", doctree.Attr("href", string(node.URL(src))))
				e.text(string(node.Label(src)))
				e.end()
			}
			return ast.WalkSkipChildren, e.err
		case *ast.ThematicBreak:
			if entering {
				e.block("hr")
				e.endBlock()
			}
			return ast.WalkSkipChildren, e.err
		}

		local, attrs := markdownElement(n)
		if local == "" {
			return ast.WalkContinue, nil
		}
		block := n.Type() == ast.TypeBlock
		switch {
		case entering && block:
			e.block(local, attrs...)
		case entering:
			e.start(local, attrs...)
		case block:
			e.endBlock()
		default:
			e.end()
		}
		return ast.WalkContinue, e.err
	})
	if err != nil {
		return err
	}
	secs.close()
	return e.finish()
}

// markdownElement names the element for container nodes.
func markdownElement(n ast.Node) (string, []doctree.Attribute) {
	switch node := n.(type) {
	case *ast.Paragraph:
		return "p", nil
	case *ast.Blockquote:
		return "blockquote", nil
	case *ast.List:
		if node.IsOrdered() {
			if node.Start != 1 {
				return "ol", []doctree.Attribute{doctree.Attr("start", strconv.Itoa(node.Start))}
			}
			return "ol", nil
		}
		return "ul", nil
	case *ast.ListItem:
		return "li", nil
	case *ast.Emphasis:
		if node.Level >= 2 {
			return "strong", nil
		}
		return "em", nil
	case *ast.CodeSpan:
		return "code", nil
	case *ast.Link:
		attrs := []doctree.Attribute{doctree.Attr("href", string(node.Destination))}
		if len(node.Title) > 0 {
			attrs = append(attrs, doctree.Attr("title", string(node.Title)))
		}
		return "a", attrs
	}
	return "", nil
}

// inlineText concatenates the text under n.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return string(bytes.TrimSpace(buf.Bytes()))
}

// linesText joins the raw lines of a block such as a code block.
func linesText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
