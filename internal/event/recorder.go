package event

import (
	"strings"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

// Kind names an event type.
type Kind int

const (
	KindStartDocument Kind = iota + 1
	KindEndDocument
	KindStartPrefixMapping
	KindEndPrefixMapping
	KindStartElement
	KindCharacters
	KindEndElement
)

func (k Kind) String() string {
	switch k {
	case KindStartDocument:
		return "start-document"
	case KindEndDocument:
		return "end-document"
	case KindStartPrefixMapping:
		return "start-prefix-mapping"
	case KindEndPrefixMapping:
		return "end-prefix-mapping"
	case KindStartElement:
		return "start-element"
	case KindCharacters:
		return "characters"
	case KindEndElement:
		return "end-element"
	}
	return "unknown"
}

// Event is one recorded call.
type Event struct {
	Kind   Kind
	Name   doctree.QName
	Attrs  []doctree.Attribute
	Text   string
	Prefix string
	URI    string
}

// Recorder is a Handler that keeps every event in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) add(e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) StartDocument() error { return r.add(Event{Kind: KindStartDocument}) }
func (r *Recorder) EndDocument() error   { return r.add(Event{Kind: KindEndDocument}) }

func (r *Recorder) StartPrefixMapping(prefix, uri string) error {
	return r.add(Event{Kind: KindStartPrefixMapping, Prefix: prefix, URI: uri})
}

func (r *Recorder) EndPrefixMapping(prefix string) error {
	return r.add(Event{Kind: KindEndPrefixMapping, Prefix: prefix})
}

func (r *Recorder) StartElement(name doctree.QName, attrs []doctree.Attribute) error {
	return r.add(Event{Kind: KindStartElement, Name: name, Attrs: append([]doctree.Attribute(nil), attrs...)})
}

func (r *Recorder) Characters(text string) error {
	return r.add(Event{Kind: KindCharacters, Text: text})
}

func (r *Recorder) EndElement(name doctree.QName) error {
	return r.add(Event{Kind: KindEndElement, Name: name})
}

// Replay sends the recorded events to h, stopping at the first error.
func (r *Recorder) Replay(h Handler) error {
	for _, e := range r.Events {
		var err error
		switch e.Kind {
		case KindStartDocument:
			err = h.StartDocument()
		case KindEndDocument:
			err = h.EndDocument()
		case KindStartPrefixMapping:
			err = h.StartPrefixMapping(e.Prefix, e.URI)
		case KindEndPrefixMapping:
			err = h.EndPrefixMapping(e.Prefix)
		case KindStartElement:
			err = h.StartElement(e.Name, e.Attrs)
		case KindCharacters:
			err = h.Characters(e.Text)
		case KindEndElement:
			err = h.EndElement(e.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Markup renders the element and text events as unescaped pseudo-markup
// with attributes omitted, e.g. "<root><child>text</child></root>".
func (r *Recorder) Markup() string {
	var sb strings.Builder
	for _, e := range r.Events {
		switch e.Kind {
		case KindStartElement:
			sb.WriteString("<" + e.Name.String() + ">")
		case KindEndElement:
			sb.WriteString("</" + e.Name.String() + ">")
		case KindCharacters:
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}
