// Package serialize replays a Document as markup events.
package serialize

import (
	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

type binding struct {
	prefix string
	uri    string
}

// Replay walks doc depth-first and sends the events that would rebuild it to
// h: element start and end with the stored names and attributes, captured
// text from the buffer and uncaptured text from its literal. Prefix mappings
// are derived from the names themselves, since declarations are not stored.
// Replay performs no filtering.
func Replay(doc *doctree.Document, h event.Handler) error {
	if err := h.StartDocument(); err != nil {
		return err
	}

	var scopes [][]binding
	lookup := func(prefix string) (string, bool) {
		if prefix == "xml" {
			return "http://www.w3.org/XML/1998/namespace", true
		}
		for i := len(scopes) - 1; i >= 0; i-- {
			for j := len(scopes[i]) - 1; j >= 0; j-- {
				if scopes[i][j].prefix == prefix {
					return scopes[i][j].uri, true
				}
			}
		}
		return "", false
	}

	err := doc.Walk(func(id doctree.NodeID, n doctree.Node, _ int, entering bool) error {
		if n.Kind == doctree.KindText {
			text := n.Literal
			if n.Captured {
				text = doc.Slice(n.Begin, n.End)
			}
			if text == "" {
				return nil
			}
			return h.Characters(text)
		}

		if !entering {
			if err := h.EndElement(n.Name); err != nil {
				return err
			}
			scope := scopes[len(scopes)-1]
			scopes = scopes[:len(scopes)-1]
			for i := len(scope) - 1; i >= 0; i-- {
				if err := h.EndPrefixMapping(scope[i].prefix); err != nil {
					return err
				}
			}
			return nil
		}

		var scope []binding
		need := func(prefix, uri string) {
			for _, b := range scope {
				if b.prefix == prefix {
					return
				}
			}
			bound, ok := lookup(prefix)
			if ok && bound == uri {
				return
			}
			if !ok && uri == "" && prefix == "" {
				return
			}
			scope = append(scope, binding{prefix: prefix, uri: uri})
		}
		need(n.Name.Prefix, n.Name.Space)
		for _, a := range n.Attrs {
			if a.Name.Prefix != "" && a.Name.Prefix != "xml" {
				need(a.Name.Prefix, a.Name.Space)
			}
		}
		for _, b := range scope {
			if err := h.StartPrefixMapping(b.prefix, b.uri); err != nil {
				return err
			}
		}
		scopes = append(scopes, scope)
		return h.StartElement(n.Name, n.Attrs)
	})
	if err != nil {
		return err
	}
	return h.EndDocument()
}
