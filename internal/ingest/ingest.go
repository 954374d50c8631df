// Package ingest turns a markup event stream into a doctree.Document.
//
// Builder is an event.Handler driven by a single producer. It keeps an
// explicit stack of open-element frames, so nesting depth is bounded by memory
// rather than the call stack.
package ingest

import (
	"fmt"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/segment"
	"github.com/dgallion1/xmlgest/internal/xmlchar"
)

// Closed describes an element that has just been sealed. Depth is 0 for the
// root.
type Closed struct {
	Doc   *doctree.Document
	ID    doctree.NodeID
	Depth int
}

// Options configures a Builder. The zero value captures all text, filters
// with XML 1.0 rules and does no segmentation.
type Options struct {
	// Filter replaces illegal characters in text and attribute values.
	Filter xmlchar.Filter

	// Capture overrides the inherited capture flag for elements with the
	// given local name; false keeps their text out of the buffer.
	Capture map[string]bool

	// OnClose runs synchronously after each element is sealed. An error
	// aborts ingestion.
	OnClose func(Closed) error

	// BlockElements names the elements whose ranges delimit segmentation
	// zones. Segmentation runs at EndDocument only when it is non-empty.
	BlockElements []string
	// NestedSegments re-runs Splitter inside each zone instead of treating
	// each block as a single segment.
	NestedSegments bool
	// Splitter defaults to segment.Sentences.
	Splitter segment.Splitter
}

type state int

const (
	stateIdle state = iota
	stateInDocument
	stateDone
	stateFailed
)

type frame struct {
	id      doctree.NodeID
	name    doctree.QName
	capture bool
}

// Builder consumes events and builds a Document.
type Builder struct {
	opts     Options
	doc      *doctree.Document
	state    state
	stack    []frame
	replaced int
	err      error
}

var _ event.Handler = (*Builder)(nil)

func New(opts Options) *Builder {
	if opts.Splitter == nil {
		opts.Splitter = segment.Sentences{}
	}
	return &Builder{opts: opts}
}

// Document returns the finished document. It fails unless EndDocument was
// received and accepted; a partial document is never returned.
func (b *Builder) Document() (*doctree.Document, error) {
	switch b.state {
	case stateDone:
		return b.doc, nil
	case stateFailed:
		return nil, b.err
	case stateIdle:
		return nil, event.Malformed("end-of-stream", "no document was started")
	}
	return nil, event.Malformed("end-of-stream", "stream ended with %d element(s) open and no end-document", len(b.stack))
}

// Replaced returns how many code units the character filter replaced.
func (b *Builder) Replaced() int { return b.replaced }

// Depth returns the number of open elements.
func (b *Builder) Depth() int { return len(b.stack) }

func (b *Builder) fail(err error) error {
	if b.state != stateFailed {
		b.state = stateFailed
		b.err = err
		b.doc = nil
		b.stack = nil
	}
	return b.err
}

func (b *Builder) inDocument(op string) error {
	switch b.state {
	case stateInDocument:
		return nil
	case stateFailed:
		return b.err
	case stateDone:
		return b.fail(event.Malformed(op, "event after end-document"))
	}
	return b.fail(event.Malformed(op, "event before start-document"))
}

func (b *Builder) StartDocument() error {
	switch b.state {
	case stateIdle:
		b.doc = doctree.New()
		b.state = stateInDocument
		return nil
	case stateFailed:
		return b.err
	}
	return b.fail(event.Malformed("start-document", "document already started"))
}

func (b *Builder) StartPrefixMapping(string, string) error { return b.inDocument("start-prefix-mapping") }
func (b *Builder) EndPrefixMapping(string) error           { return b.inDocument("end-prefix-mapping") }

func (b *Builder) StartElement(name doctree.QName, attrs []doctree.Attribute) error {
	if err := b.inDocument("start-element"); err != nil {
		return err
	}
	parent, capture := doctree.NoNode, true
	if n := len(b.stack); n > 0 {
		parent, capture = b.stack[n-1].id, b.stack[n-1].capture
	} else if b.doc.Root() != doctree.NoNode {
		return b.fail(event.Malformed("start-element", "second top-level element <%s>", name))
	}
	if c, ok := b.opts.Capture[name.Local]; ok {
		capture = c
	}

	filtered := make([]doctree.Attribute, len(attrs))
	for i, a := range attrs {
		v, n := b.opts.Filter.String(a.Value)
		b.replaced += n
		a.Value = v
		filtered[i] = a
	}

	id, err := b.doc.AddElement(parent, name, filtered)
	if err != nil {
		return b.fail(fmt.Errorf("start <%s>: %w", name, err))
	}
	b.stack = append(b.stack, frame{id: id, name: name, capture: capture})
	return nil
}

// Characters appends text to the innermost open element. Text outside the
// root element is discarded.
func (b *Builder) Characters(text string) error {
	if err := b.inDocument("characters"); err != nil {
		return err
	}
	if len(b.stack) == 0 || text == "" {
		return nil
	}
	top := b.stack[len(b.stack)-1]
	if !top.capture {
		s, n := b.opts.Filter.String(text)
		b.replaced += n
		if _, err := b.doc.AddLiteral(top.id, s); err != nil {
			return b.fail(err)
		}
		return nil
	}
	units, n := b.opts.Filter.Encode(text)
	b.replaced += n
	if _, err := b.doc.AddText(top.id, units); err != nil {
		return b.fail(err)
	}
	return nil
}

func (b *Builder) EndElement(name doctree.QName) error {
	if err := b.inDocument("end-element"); err != nil {
		return err
	}
	if len(b.stack) == 0 {
		return b.fail(event.Malformed("end-element", "</%s> with no open element", name))
	}
	top := b.stack[len(b.stack)-1]
	if top.name.Space != name.Space || top.name.Local != name.Local {
		return b.fail(event.Malformed("end-element", "</%s> closes <%s>", name, top.name))
	}
	if err := b.doc.CloseElement(top.id); err != nil {
		return b.fail(err)
	}
	b.stack = b.stack[:len(b.stack)-1]

	if b.opts.OnClose != nil {
		if err := b.opts.OnClose(Closed{Doc: b.doc, ID: top.id, Depth: len(b.stack)}); err != nil {
			return b.fail(fmt.Errorf("close <%s>: %w", name, err))
		}
	}
	return nil
}

// EndDocument seals the document and runs block segmentation.
func (b *Builder) EndDocument() error {
	if err := b.inDocument("end-document"); err != nil {
		return err
	}
	if len(b.stack) > 0 {
		return b.fail(event.Malformed("end-document", "%d element(s) still open, innermost <%s>",
			len(b.stack), b.stack[len(b.stack)-1].name))
	}
	if err := b.doc.Seal(); err != nil {
		return b.fail(err)
	}
	if len(b.opts.BlockElements) > 0 {
		spans, err := segment.Blocks(b.doc, b.opts.BlockElements, b.opts.NestedSegments, b.opts.Splitter)
		if err != nil {
			return b.fail(err)
		}
		for _, s := range spans {
			if err := b.doc.AddSegment(s.Begin, s.End); err != nil {
				return b.fail(err)
			}
		}
	}
	b.state = stateDone
	return nil
}
