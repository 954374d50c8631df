// Package event defines the push-style markup event contract shared by event
// sources (parsers, the serializer), filters and sinks (the ingester, the XML
// writer).
package event

import (
	"errors"
	"fmt"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

// Handler receives markup events in document order. A non-nil error from any
// method aborts the producer, which returns that error unchanged.
//
// Prefix mappings are reported before the StartElement that declares them and
// ended after the matching EndElement.
type Handler interface {
	StartDocument() error
	EndDocument() error
	StartPrefixMapping(prefix, uri string) error
	EndPrefixMapping(prefix string) error
	StartElement(name doctree.QName, attrs []doctree.Attribute) error
	Characters(text string) error
	EndElement(name doctree.QName) error
}

// ErrMalformedStream is the sentinel behind every MalformedStreamError.
var ErrMalformedStream = errors.New("malformed event stream")

// MalformedStreamError reports an event sequence that cannot describe a
// well-formed document: unbalanced or mismatched end events, premature end
// of stream, or a nested StartDocument. It is not retriable for the same input.
type MalformedStreamError struct {
	Op     string
	Reason string
}

func (e *MalformedStreamError) Error() string {
	return fmt.Sprintf("malformed event stream: %s: %s", e.Op, e.Reason)
}

func (e *MalformedStreamError) Unwrap() error { return ErrMalformedStream }

// Malformed builds a MalformedStreamError.
func Malformed(op, format string, args ...any) error {
	return &MalformedStreamError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Discard accepts and ignores every event.
type Discard struct{}

func (Discard) StartDocument() error                                   { return nil }
func (Discard) EndDocument() error                                     { return nil }
func (Discard) StartPrefixMapping(string, string) error                { return nil }
func (Discard) EndPrefixMapping(string) error                          { return nil }
func (Discard) StartElement(doctree.QName, []doctree.Attribute) error { return nil }
func (Discard) Characters(string) error                                { return nil }
func (Discard) EndElement(doctree.QName) error                         { return nil }
