package doctree

import (
	"encoding/json"
	"fmt"
	"unicode/utf16"
)

type wireNode struct {
	Kind     string      `json:"kind"`
	Begin    int         `json:"begin"`
	End      int         `json:"end"`
	Parent   NodeID      `json:"parent"`
	Name     *QName      `json:"name,omitempty"`
	Attrs    []Attribute `json:"attrs,omitempty"`
	Children []NodeID    `json:"children,omitempty"`
	Captured bool        `json:"captured,omitempty"`
	Literal  string      `json:"literal,omitempty"`
}

type wireDocument struct {
	Text     string     `json:"text"`
	Root     NodeID     `json:"root"`
	Nodes    []wireNode `json:"nodes"`
	Segments []Segment  `json:"segments"`
}

// MarshalJSON encodes the document with its text as a string and the arena
// as a flat node list.
func (d *Document) MarshalJSON() ([]byte, error) {
	w := wireDocument{
		Text:     d.Text(),
		Root:     d.root,
		Nodes:    make([]wireNode, len(d.nodes)),
		Segments: d.Segments(),
	}
	for i, n := range d.nodes {
		wn := wireNode{
			Kind:   n.Kind.String(),
			Begin:  n.Begin,
			End:    n.End,
			Parent: n.Parent,
		}
		switch n.Kind {
		case KindElement:
			name := n.Name
			wn.Name = &name
			wn.Attrs = n.Attrs
			wn.Children = n.Children
		case KindText:
			wn.Captured = n.Captured
			wn.Literal = n.Literal
		}
		w.Nodes[i] = wn
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a sealed document and verifies its invariants.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Document{
		text:     utf16.Encode([]rune(w.Text)),
		root:     w.Root,
		nodes:    make([]Node, len(w.Nodes)),
		segments: w.Segments,
		sealed:   true,
	}
	for i, wn := range w.Nodes {
		n := Node{Begin: wn.Begin, End: wn.End, Parent: wn.Parent, sealed: true}
		switch wn.Kind {
		case "element":
			n.Kind = KindElement
			if wn.Name != nil {
				n.Name = *wn.Name
			}
			n.Attrs = wn.Attrs
			n.Children = wn.Children
		case "text":
			n.Kind = KindText
			n.Captured = wn.Captured
			n.Literal = wn.Literal
		default:
			return fmt.Errorf("node %d: unknown kind %q", i, wn.Kind)
		}
		out.nodes[i] = n
	}
	if err := out.Check(); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	*d = out
	return nil
}
