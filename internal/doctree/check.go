package doctree

import "fmt"

// Check verifies the offset invariants: every node lies inside the buffer,
// each element's range is exactly tiled by its children in order, parent
// links agree with child lists, and every node is reachable from the root.
func (d *Document) Check() error {
	n := len(d.text)
	for i, nd := range d.nodes {
		if nd.Begin < 0 || nd.Begin > nd.End || nd.End > n {
			return fmt.Errorf("node %d: range [%d,%d) outside text of length %d", i, nd.Begin, nd.End, n)
		}
		switch nd.Kind {
		case KindElement:
			cursor := nd.Begin
			for _, c := range nd.Children {
				if c < 0 || int(c) >= len(d.nodes) {
					return fmt.Errorf("node %d: child %d out of range", i, c)
				}
				child := d.nodes[c]
				if child.Parent != NodeID(i) {
					return fmt.Errorf("node %d: child %d has parent %d", i, c, child.Parent)
				}
				if child.Begin != cursor {
					return fmt.Errorf("node %d: child %d begins at %d, want %d", i, c, child.Begin, cursor)
				}
				cursor = child.End
			}
			if cursor != nd.End {
				return fmt.Errorf("node %d: children end at %d, element ends at %d", i, cursor, nd.End)
			}
		case KindText:
			if !nd.Captured && nd.Begin != nd.End {
				return fmt.Errorf("node %d: uncaptured text has width %d", i, nd.End-nd.Begin)
			}
		default:
			return fmt.Errorf("node %d: unknown %s", i, nd.Kind)
		}
	}

	if d.root == NoNode {
		if len(d.nodes) != 0 {
			return fmt.Errorf("%d nodes without a root", len(d.nodes))
		}
	} else {
		if d.root < 0 || int(d.root) >= len(d.nodes) {
			return fmt.Errorf("root %d out of range", d.root)
		}
		root := d.nodes[d.root]
		if root.Kind != KindElement || root.Parent != NoNode {
			return fmt.Errorf("root %d is not a top-level element", d.root)
		}
		if d.sealed && root.End != n {
			return fmt.Errorf("root ends at %d, text length is %d", root.End, n)
		}
		seen := 0
		_ = d.Walk(func(NodeID, Node, int, bool) error {
			seen++
			return nil
		})
		// Elements are visited twice.
		elements := 0
		for _, nd := range d.nodes {
			if nd.Kind == KindElement {
				elements++
			}
		}
		if seen != len(d.nodes)+elements {
			return fmt.Errorf("%d nodes unreachable from root", len(d.nodes)+elements-seen)
		}
	}

	for i, s := range d.segments {
		if s.Begin < 0 || s.Begin > s.End || s.End > n {
			return fmt.Errorf("segment %d: [%d,%d) outside text of length %d", i, s.Begin, s.End, n)
		}
	}
	return nil
}
