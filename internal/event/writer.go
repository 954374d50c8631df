package event

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\t", "&#x9;", "\n", "&#xA;", "\r", "&#xD;",
	)
)

// EscapeText escapes character data.
func EscapeText(s string) string { return textEscaper.Replace(s) }

// EscapeAttr escapes an attribute value for double quotes.
func EscapeAttr(s string) string { return attrEscaper.Replace(s) }

type nsDecl struct {
	prefix string
	uri    string
}

type writerFrame struct {
	name  string
	decls []nsDecl
}

// Writer is a Handler that serializes events as XML. Elements are never
// self-closed. Namespace declarations come from prefix-mapping events and
// from any prefix still unbound when an element or attribute uses it.
type Writer struct {
	w           *bufio.Writer
	declaration bool
	version     string

	pending []nsDecl
	stack   []writerFrame
	gen     int
	done    bool
	err     error
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithDeclaration writes <?xml version="..." encoding="UTF-8"?> at
// StartDocument.
func WithDeclaration(version string) WriterOption {
	return func(w *Writer) {
		w.declaration = true
		w.version = version
	}
}

func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	out := &Writer{w: bufio.NewWriter(w), version: "1.0"}
	for _, o := range opts {
		o(out)
	}
	return out
}

func (w *Writer) write(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(s)
}

// Flush writes buffered output. EndDocument flushes on its own.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

func (w *Writer) StartDocument() error {
	if w.declaration {
		w.write(`<?xml version="` + w.version + `" encoding="UTF-8"?>`)
	}
	return w.err
}

func (w *Writer) EndDocument() error {
	if len(w.stack) > 0 {
		return Malformed("end-document", "%d element(s) still open", len(w.stack))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.done = true
	return nil
}

// Done reports whether EndDocument was accepted.
func (w *Writer) Done() bool { return w.done }

func (w *Writer) StartPrefixMapping(prefix, uri string) error {
	w.pending = append(w.pending, nsDecl{prefix: prefix, uri: uri})
	return nil
}

func (w *Writer) EndPrefixMapping(string) error { return nil }

// lookup returns the URI bound to prefix by open elements.
func (w *Writer) lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return xmlNamespace, true
	}
	for i := len(w.stack) - 1; i >= 0; i-- {
		for _, d := range w.stack[i].decls {
			if d.prefix == prefix {
				return d.uri, true
			}
		}
	}
	return "", false
}

func (w *Writer) StartElement(name doctree.QName, attrs []doctree.Attribute) error {
	if w.err != nil {
		return w.err
	}
	decls := make([]nsDecl, 0, len(w.pending))
	bind := func(prefix, uri string) {
		for i := range decls {
			if decls[i].prefix == prefix {
				decls[i].uri = uri
				return
			}
		}
		decls = append(decls, nsDecl{prefix: prefix, uri: uri})
	}
	for _, d := range w.pending {
		bind(d.prefix, d.uri)
	}
	w.pending = w.pending[:0]

	declared := func(prefix string) bool {
		for _, d := range decls {
			if d.prefix == prefix {
				return true
			}
		}
		return false
	}
	resolve := func(prefix string) (string, bool) {
		for _, d := range decls {
			if d.prefix == prefix {
				return d.uri, true
			}
		}
		return w.lookup(prefix)
	}

	if uri, ok := resolve(name.Prefix); (ok && uri != name.Space) || (!ok && (name.Space != "" || name.Prefix != "")) {
		bind(name.Prefix, name.Space)
	}

	used := map[string]bool{name.Prefix: true}
	written := make([]string, len(attrs))
	for i, a := range attrs {
		q := a.Name
		if q.Space != "" && q.Prefix == "" {
			q.Prefix = w.prefixFor(q.Space, resolve)
		}
		if q.Prefix != "" && q.Prefix != "xml" {
			uri, ok := resolve(q.Prefix)
			// Rebinding a prefix this element already uses for another
			// namespace would move the element or an earlier attribute.
			if ok && uri != q.Space && (used[q.Prefix] || declared(q.Prefix)) {
				q.Prefix = w.prefixFor(q.Space, resolve)
				uri, ok = resolve(q.Prefix)
			}
			if !ok || uri != q.Space {
				bind(q.Prefix, q.Space)
			}
		}
		used[q.Prefix] = true
		written[i] = q.String()
	}

	tag := name.String()
	w.write("<" + tag)
	for _, d := range decls {
		if d.prefix == "" {
			w.write(` xmlns="` + EscapeAttr(d.uri) + `"`)
		} else {
			w.write(" xmlns:" + d.prefix + `="` + EscapeAttr(d.uri) + `"`)
		}
	}
	for i, a := range attrs {
		w.write(" " + written[i] + `="` + EscapeAttr(a.Value) + `"`)
	}
	w.write(">")
	w.stack = append(w.stack, writerFrame{name: tag, decls: decls})
	return w.err
}

// prefixFor finds or invents a prefix for a namespaced attribute that
// arrived without one.
func (w *Writer) prefixFor(uri string, resolve func(string) (string, bool)) string {
	for i := len(w.stack) - 1; i >= 0; i-- {
		for _, d := range w.stack[i].decls {
			if d.uri == uri && d.prefix != "" {
				if bound, _ := resolve(d.prefix); bound == uri {
					return d.prefix
				}
			}
		}
	}
	for {
		w.gen++
		p := fmt.Sprintf("ns%d", w.gen)
		if _, taken := resolve(p); !taken {
			return p
		}
	}
}

func (w *Writer) Characters(text string) error {
	if len(w.stack) == 0 {
		return w.err
	}
	w.write(EscapeText(text))
	return w.err
}

func (w *Writer) EndElement(name doctree.QName) error {
	if len(w.stack) == 0 {
		return Malformed("end-element", "</%s> with no open element", name)
	}
	top := w.stack[len(w.stack)-1]
	if top.name != name.String() {
		return Malformed("end-element", "</%s> closes <%s>", name, top.name)
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.write("</" + top.name + ">")
	return w.err
}
