package parser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// XMLNamespace is the namespace the xml prefix is bound to.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// ErrSyntax wraps every well-formedness failure reported by XMLSource.
var ErrSyntax = errors.New("xml syntax error")

// XMLSource streams an XML document. Names keep the prefix they were
// written with; namespace declarations surface as prefix-mapping events
// rather than attributes. Entities other than the predefined five are not
// expanded.
type XMLSource struct{}

type xmlBinding struct {
	prefix, uri string
}

type xmlFrame struct {
	raw   xml.Name
	name  doctree.QName
	decls int
}

func (s *XMLSource) Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error {
	d := xml.NewDecoder(r)
	d.Strict = true
	d.Entity = map[string]string{}
	d.CharsetReader = charset.NewReaderLabel

	var (
		bindings []xmlBinding
		stack    []xmlFrame
	)
	lookup := func(prefix string) (string, bool) {
		for i := len(bindings) - 1; i >= 0; i-- {
			if bindings[i].prefix == prefix {
				return bindings[i].uri, true
			}
		}
		switch prefix {
		case "":
			return "", true
		case "xml":
			return XMLNamespace, true
		}
		return "", false
	}
	syntaxErr := func(format string, args ...any) error {
		line, col := d.InputPos()
		return fmt.Errorf("%w: %s:%d:%d: %s", ErrSyntax, filename, line, col, fmt.Sprintf(format, args...))
	}

	if err := h.StartDocument(); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSyntax, filename, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			frame := xmlFrame{raw: t.Name}
			attrs := make([]doctree.Attribute, 0, len(t.Attr))
			var plain []xml.Attr
			for _, a := range t.Attr {
				var prefix string
				switch {
				case a.Name.Space == "xmlns":
					prefix = a.Name.Local
				case a.Name.Space == "" && a.Name.Local == "xmlns":
				default:
					plain = append(plain, a)
					continue
				}
				if err := h.StartPrefixMapping(prefix, a.Value); err != nil {
					return err
				}
				bindings = append(bindings, xmlBinding{prefix: prefix, uri: a.Value})
				frame.decls++
			}

			uri, ok := lookup(t.Name.Space)
			if !ok {
				return syntaxErr("unbound prefix %q on element %s", t.Name.Space, t.Name.Local)
			}
			frame.name = doctree.QName{Space: uri, Local: t.Name.Local, Prefix: t.Name.Space}

			for _, a := range plain {
				name := doctree.QName{Local: a.Name.Local, Prefix: a.Name.Space}
				if a.Name.Space != "" {
					if name.Space, ok = lookup(a.Name.Space); !ok {
						return syntaxErr("unbound prefix %q on attribute %s", a.Name.Space, a.Name.Local)
					}
				}
				attrs = append(attrs, doctree.Attribute{Name: name, Value: a.Value, Type: doctree.AttrCDATA})
			}

			stack = append(stack, frame)
			if err := h.StartElement(frame.name, attrs); err != nil {
				return err
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return syntaxErr("unexpected end element </%s>", rawName(t.Name))
			}
			frame := stack[len(stack)-1]
			if frame.raw != t.Name {
				return syntaxErr("element <%s> closed by </%s>", rawName(frame.raw), rawName(t.Name))
			}
			stack = stack[:len(stack)-1]
			if err := h.EndElement(frame.name); err != nil {
				return err
			}
			for i := 0; i < frame.decls; i++ {
				b := bindings[len(bindings)-1]
				bindings = bindings[:len(bindings)-1]
				if err := h.EndPrefixMapping(b.prefix); err != nil {
					return err
				}
			}

		case xml.CharData:
			if len(t) == 0 {
				continue
			}
			if err := h.Characters(string(t)); err != nil {
				return err
			}
		}
	}

	// A truncated document leaves the handler without EndDocument so the
	// consumer reports the premature end itself.
	if len(stack) > 0 {
		return nil
	}
	return h.EndDocument()
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
