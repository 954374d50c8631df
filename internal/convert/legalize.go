package convert

import (
	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/xmlchar"
)

// legalizer replaces illegal characters in text and attribute values on
// their way to the wrapped handler.
type legalizer struct {
	event.Handler
	filter   xmlchar.Filter
	replaced int
}

func (l *legalizer) StartElement(name doctree.QName, attrs []doctree.Attribute) error {
	var out []doctree.Attribute
	for i, a := range attrs {
		v, n := l.filter.String(a.Value)
		if n == 0 {
			continue
		}
		if out == nil {
			out = append([]doctree.Attribute(nil), attrs...)
		}
		out[i].Value = v
		l.replaced += n
	}
	if out == nil {
		out = attrs
	}
	return l.Handler.StartElement(name, out)
}

func (l *legalizer) Characters(text string) error {
	v, n := l.filter.String(text)
	l.replaced += n
	return l.Handler.Characters(v)
}
