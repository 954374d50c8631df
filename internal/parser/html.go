package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// HTMLSource handles HTML files. The html5 parse tree is replayed as events
// with lower-case names; comments and doctypes are skipped.
type HTMLSource struct {
	// Prefilter runs the input through bluemonday's UGC policy first, which
	// removes scripts, event handlers and unsafe URLs before the content
	// policy ever sees them.
	Prefilter bool
}

func (s *HTMLSource) Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error {
	if s.Prefilter {
		r = bluemonday.UGCPolicy().SanitizeReader(r)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	if err := h.StartDocument(); err != nil {
		return err
	}

	type item struct {
		n       *html.Node
		name    doctree.QName
		leaving bool
	}
	var stack []item
	pushChildren := func(n *html.Node) {
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, item{n: c})
		}
	}
	pushChildren(doc)

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.leaving {
			if err := h.EndElement(it.name); err != nil {
				return err
			}
			continue
		}
		switch it.n.Type {
		case html.ElementNode:
			if err := ctx.Err(); err != nil {
				return err
			}
			name := doctree.Name(xmlName(it.n.Data))
			attrs := make([]doctree.Attribute, 0, len(it.n.Attr))
			for _, a := range it.n.Attr {
				if a.Namespace != "" || !validXMLName(a.Key) {
					continue
				}
				attrs = append(attrs, doctree.Attr(a.Key, a.Val))
			}
			if err := h.StartElement(name, attrs); err != nil {
				return err
			}
			stack = append(stack, item{n: it.n, name: name, leaving: true})
			pushChildren(it.n)
		case html.TextNode:
			if err := h.Characters(it.n.Data); err != nil {
				return err
			}
		}
	}
	return h.EndDocument()
}

// validXMLName reports whether s is an unprefixed XML name made of ASCII
// letters, digits, '-', '_' and '.', starting with a letter or '_'.
func validXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case i > 0 && (c >= '0' && c <= '9' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// xmlName maps an html tag name onto a usable XML name.
func xmlName(s string) string {
	if validXMLName(s) {
		return s
	}
	var b strings.Builder
	for i, c := range s {
		ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' ||
			i > 0 && (c >= '0' && c <= '9' || c == '-' || c == '.')
		if ok {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
