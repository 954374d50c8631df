// Package doctree holds the offset-indexed document model: a flattened text
// buffer plus a tree of markup nodes addressed by [begin,end) offsets into it.
//
// Offsets count UTF-16 code units. Nodes live in an arena owned by the
// Document and refer to each other by NodeID, so parent links are plain
// indices and never own anything.
package doctree

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// NodeID indexes a node in its Document's arena.
type NodeID int32

// NoNode is the NodeID of a missing parent or root.
const NoNode NodeID = -1

// Kind tags the node variant.
type Kind uint8

const (
	KindElement Kind = iota + 1
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var (
	// ErrSealed is returned when mutating a sealed document or element.
	ErrSealed = errors.New("doctree: sealed")
	// ErrInvalidNode is returned for a NodeID outside the arena or of the wrong kind.
	ErrInvalidNode = errors.New("doctree: invalid node")
	// ErrRootExists is returned when a second top-level element is added.
	ErrRootExists = errors.New("doctree: root already set")
)

// QName is a qualified name. Space is the namespace URI, Prefix the literal
// prefix seen at read time.
type QName struct {
	Space  string `json:"space,omitempty"`
	Local  string `json:"local"`
	Prefix string `json:"prefix,omitempty"`
}

// Name returns a QName with no namespace.
func Name(local string) QName {
	return QName{Local: local}
}

// String returns the prefixed form, e.g. "tei:p".
func (q QName) String() string {
	if q.Prefix != "" {
		return q.Prefix + ":" + q.Local
	}
	return q.Local
}

// AttrType tags an attribute value. Everything read from XML is CDATA.
type AttrType string

const AttrCDATA AttrType = "CDATA"

// Attribute is a name/value pair on an element.
type Attribute struct {
	Name  QName    `json:"name"`
	Value string   `json:"value"`
	Type  AttrType `json:"type,omitempty"`
}

// Attr builds a CDATA attribute with no namespace.
func Attr(local, value string) Attribute {
	return Attribute{Name: Name(local), Value: value, Type: AttrCDATA}
}

// Node is one arena entry. Name, Attrs and Children are meaningful for
// elements; Captured and Literal for text nodes.
type Node struct {
	Kind   Kind
	Begin  int
	End    int
	Parent NodeID

	Name     QName
	Attrs    []Attribute
	Children []NodeID

	// Captured text occupies [Begin,End) of the buffer. Uncaptured text is
	// zero-width and carries its content in Literal.
	Captured bool
	Literal  string

	sealed bool
}

// Segment is a sentence-like annotation over the text buffer.
type Segment struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Document owns the text buffer and the node arena.
type Document struct {
	text     []uint16
	nodes    []Node
	root     NodeID
	segments []Segment
	sealed   bool
}

// New returns an empty, unsealed document.
func New() *Document {
	return &Document{root: NoNode}
}

// Len returns the length of the text buffer in code units.
func (d *Document) Len() int { return len(d.text) }

// Text returns the whole text buffer.
func (d *Document) Text() string { return string(utf16.Decode(d.text)) }

// Slice returns the text in [begin,end). Out-of-range bounds are clamped.
func (d *Document) Slice(begin, end int) string {
	return string(utf16.Decode(d.Units(begin, end)))
}

// Units returns a copy of the code units in [begin,end), clamped to the buffer.
func (d *Document) Units(begin, end int) []uint16 {
	if begin < 0 {
		begin = 0
	}
	if end > len(d.text) {
		end = len(d.text)
	}
	if begin >= end {
		return nil
	}
	out := make([]uint16, end-begin)
	copy(out, d.text[begin:end])
	return out
}

// Root returns the root element, or NoNode.
func (d *Document) Root() NodeID { return d.root }

// Sealed reports whether ingestion has completed.
func (d *Document) Sealed() bool { return d.sealed }

// NodeCount returns the number of nodes in the arena.
func (d *Document) NodeCount() int { return len(d.nodes) }

// Node returns a copy of the node. The Children and Attrs slices are shared
// and must not be modified.
func (d *Document) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(d.nodes) {
		return Node{}, false
	}
	return d.nodes[id], true
}

// Content returns the characters of a text node: the buffer slice when
// captured, the inline literal otherwise.
func (d *Document) Content(id NodeID) string {
	n, ok := d.Node(id)
	if !ok || n.Kind != KindText {
		return ""
	}
	if n.Captured {
		return d.Slice(n.Begin, n.End)
	}
	return n.Literal
}

// Segments returns a copy of the segment annotations.
func (d *Document) Segments() []Segment {
	out := make([]Segment, len(d.segments))
	copy(out, d.segments)
	return out
}

// AddElement creates an element starting at the current text length and
// attaches it as the last child of parent, or as root when parent is NoNode.
func (d *Document) AddElement(parent NodeID, name QName, attrs []Attribute) (NodeID, error) {
	if d.sealed {
		return NoNode, ErrSealed
	}
	if parent == NoNode && d.root != NoNode {
		return NoNode, ErrRootExists
	}
	if parent != NoNode {
		if err := d.openElement(parent); err != nil {
			return NoNode, err
		}
	}
	copied := make([]Attribute, len(attrs))
	for i, a := range attrs {
		if a.Type == "" {
			a.Type = AttrCDATA
		}
		copied[i] = a
	}
	id := d.push(Node{
		Kind:   KindElement,
		Begin:  len(d.text),
		End:    len(d.text),
		Parent: parent,
		Name:   name,
		Attrs:  copied,
	})
	if parent == NoNode {
		d.root = id
	}
	return id, nil
}

// AddText appends units to the buffer and creates a captured text node
// spanning them under parent.
func (d *Document) AddText(parent NodeID, units []uint16) (NodeID, error) {
	if d.sealed {
		return NoNode, ErrSealed
	}
	if err := d.openElement(parent); err != nil {
		return NoNode, err
	}
	begin := len(d.text)
	d.text = append(d.text, units...)
	return d.push(Node{
		Kind:     KindText,
		Begin:    begin,
		End:      len(d.text),
		Parent:   parent,
		Captured: true,
	}), nil
}

// AddLiteral creates an uncaptured, zero-width text node holding s inline.
func (d *Document) AddLiteral(parent NodeID, s string) (NodeID, error) {
	if d.sealed {
		return NoNode, ErrSealed
	}
	if err := d.openElement(parent); err != nil {
		return NoNode, err
	}
	return d.push(Node{
		Kind:    KindText,
		Begin:   len(d.text),
		End:     len(d.text),
		Parent:  parent,
		Literal: s,
	}), nil
}

// CloseElement sets the element's end to the current text length and seals it.
func (d *Document) CloseElement(id NodeID) error {
	if err := d.openElement(id); err != nil {
		return err
	}
	n := &d.nodes[id]
	n.End = len(d.text)
	n.sealed = true
	return nil
}

// Seal freezes the text buffer and the tree. Every element must be closed.
func (d *Document) Seal() error {
	if d.sealed {
		return ErrSealed
	}
	for i := range d.nodes {
		if d.nodes[i].Kind == KindElement && !d.nodes[i].sealed {
			return fmt.Errorf("seal: element %d <%s> still open: %w", i, d.nodes[i].Name, ErrInvalidNode)
		}
	}
	d.sealed = true
	return nil
}

// AddSegment records a segment annotation. Segments are the only thing that
// may be added after sealing.
func (d *Document) AddSegment(begin, end int) error {
	if begin < 0 || begin > end || end > len(d.text) {
		return fmt.Errorf("segment [%d,%d) outside text of length %d", begin, end, len(d.text))
	}
	d.segments = append(d.segments, Segment{Begin: begin, End: end})
	return nil
}

func (d *Document) push(n Node) NodeID {
	id := NodeID(len(d.nodes))
	d.nodes = append(d.nodes, n)
	if n.Parent != NoNode {
		p := &d.nodes[n.Parent]
		p.Children = append(p.Children, id)
	}
	return id
}

func (d *Document) openElement(id NodeID) error {
	if id < 0 || int(id) >= len(d.nodes) || d.nodes[id].Kind != KindElement {
		return fmt.Errorf("node %d: %w", id, ErrInvalidNode)
	}
	if d.nodes[id].sealed {
		return fmt.Errorf("element %d <%s>: %w", id, d.nodes[id].Name, ErrSealed)
	}
	return nil
}

// WalkFunc is called twice per element (entering, then leaving) and once per
// text node (entering only).
type WalkFunc func(id NodeID, n Node, depth int, entering bool) error

// Walk visits the tree depth-first from the root using an explicit stack.
func (d *Document) Walk(fn WalkFunc) error {
	if d.root == NoNode {
		return nil
	}
	type frame struct {
		id   NodeID
		next int
	}
	stack := []frame{{id: d.root}}
	if err := fn(d.root, d.nodes[d.root], 0, true); err != nil {
		return err
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		el := d.nodes[top.id]
		if top.next >= len(el.Children) {
			stack = stack[:len(stack)-1]
			if err := fn(top.id, el, len(stack), false); err != nil {
				return err
			}
			continue
		}
		child := el.Children[top.next]
		top.next++
		cn := d.nodes[child]
		if err := fn(child, cn, len(stack), true); err != nil {
			return err
		}
		if cn.Kind == KindElement {
			stack = append(stack, frame{id: child})
		}
	}
	return nil
}

// Elements returns element IDs in document order.
func (d *Document) Elements() []NodeID {
	var ids []NodeID
	_ = d.Walk(func(id NodeID, n Node, _ int, entering bool) error {
		if entering && n.Kind == KindElement {
			ids = append(ids, id)
		}
		return nil
	})
	return ids
}
