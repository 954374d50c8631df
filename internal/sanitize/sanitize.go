// Package sanitize applies a policy.Table to a live event stream.
//
// The Filter mirrors the producer's open-element stack. Each frame records
// whether its tags are forwarded (Emit), hidden while children are still
// evaluated (Suppressed), or discarded together with everything inside
// (Pruned). Pruning is inherited by every descendant, so whatever the
// policy says, the downstream stream stays balanced.
package sanitize

import (
	"errors"
	"fmt"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/policy"
)

// ErrRootRemoved is returned when the policy would drop, skip or prune the
// top-level element. The output would otherwise have no single root.
var ErrRootRemoved = errors.New("sanitize: policy removes the root element")

// Mode is the effective emission mode of an open element.
type Mode int

const (
	Emit Mode = iota
	Suppressed
	Pruned
)

func (m Mode) String() string {
	switch m {
	case Emit:
		return "emit"
	case Suppressed:
		return "suppressed"
	case Pruned:
		return "pruned"
	}
	return "unknown"
}

// Stats counts what the filter did.
type Stats struct {
	Elements          int `json:"elements"`
	Emitted           int `json:"emitted"`
	Suppressed        int `json:"suppressed"`
	Pruned            int `json:"pruned"`
	AttributesDropped int `json:"attributes_dropped"`
	TextDropped       int `json:"text_dropped"`
}

type frame struct {
	name doctree.QName
	mode Mode
}

// Filter is an event.Handler that forwards policy-approved events to the
// next handler.
type Filter struct {
	table    *policy.Table
	next     event.Handler
	maxDepth int

	stack []frame
	// Prefix mappings wait for the element they belong to; each is then
	// remembered as forwarded or not so its end event matches.
	pending []nsMapping
	mapped  []bool
	stats   Stats
}

type nsMapping struct {
	prefix string
	uri    string
}

var _ event.Handler = (*Filter)(nil)

// Option configures a Filter.
type Option func(*Filter)

// WithMaxDepth suppresses the tags of elements nested deeper than n (the
// root is depth 1). Their content is still evaluated. Zero means unlimited.
func WithMaxDepth(n int) Option {
	return func(f *Filter) { f.maxDepth = n }
}

// New returns a Filter applying table in front of next. A nil table passes
// everything.
func New(table *policy.Table, next event.Handler, opts ...Option) *Filter {
	f := &Filter{table: table, next: next}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Stats returns the counters accumulated so far.
func (f *Filter) Stats() Stats { return f.stats }

func (f *Filter) top() Mode {
	if len(f.stack) == 0 {
		return Emit
	}
	return f.stack[len(f.stack)-1].mode
}

func (f *Filter) StartDocument() error { return f.next.StartDocument() }

func (f *Filter) EndDocument() error {
	if len(f.stack) > 0 {
		return event.Malformed("end-document", "%d element(s) still open", len(f.stack))
	}
	return f.next.EndDocument()
}

func (f *Filter) StartPrefixMapping(prefix, uri string) error {
	f.pending = append(f.pending, nsMapping{prefix: prefix, uri: uri})
	return nil
}

func (f *Filter) EndPrefixMapping(prefix string) error {
	if len(f.mapped) == 0 {
		return event.Malformed("end-prefix-mapping", "prefix %q was never mapped", prefix)
	}
	forwarded := f.mapped[len(f.mapped)-1]
	f.mapped = f.mapped[:len(f.mapped)-1]
	if forwarded {
		return f.next.EndPrefixMapping(prefix)
	}
	return nil
}

// mode decides the frame mode for a new child of the current top.
func (f *Filter) mode(name doctree.QName) Mode {
	if f.top() == Pruned {
		return Pruned
	}
	switch f.table.ElementAction(name) {
	case policy.Prune:
		return Pruned
	case policy.Drop, policy.Skip:
		return Suppressed
	}
	if f.maxDepth > 0 && len(f.stack)+1 > f.maxDepth {
		return Suppressed
	}
	return Emit
}

func (f *Filter) StartElement(name doctree.QName, attrs []doctree.Attribute) error {
	m := f.mode(name)
	if len(f.stack) == 0 && m != Emit {
		return fmt.Errorf("%w: <%s> is %s", ErrRootRemoved, name, m)
	}
	f.stack = append(f.stack, frame{name: name, mode: m})
	f.stats.Elements++

	pending := f.pending
	f.pending = f.pending[:0]
	for range pending {
		f.mapped = append(f.mapped, m == Emit)
	}

	switch m {
	case Suppressed:
		f.stats.Suppressed++
		return nil
	case Pruned:
		f.stats.Pruned++
		return nil
	}

	for _, p := range pending {
		if err := f.next.StartPrefixMapping(p.prefix, p.uri); err != nil {
			return err
		}
	}
	kept := make([]doctree.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if f.table.AttributeAction(name, a.Name) == policy.AttrDrop {
			f.stats.AttributesDropped++
			continue
		}
		kept = append(kept, a)
	}
	f.stats.Emitted++
	return f.next.StartElement(name, kept)
}

func (f *Filter) Characters(text string) error {
	if f.top() == Pruned {
		f.stats.TextDropped++
		return nil
	}
	return f.next.Characters(text)
}

func (f *Filter) EndElement(name doctree.QName) error {
	if len(f.stack) == 0 {
		return event.Malformed("end-element", "</%s> with no open element", name)
	}
	top := f.stack[len(f.stack)-1]
	if top.name.Space != name.Space || top.name.Local != name.Local {
		return event.Malformed("end-element", "</%s> closes <%s>", name, top.name)
	}
	f.stack = f.stack[:len(f.stack)-1]
	if top.mode != Emit {
		return nil
	}
	return f.next.EndElement(name)
}
