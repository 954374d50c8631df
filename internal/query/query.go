// Package query evaluates XPath expressions against a Document and maps the
// results back to node offsets.
package query

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/serialize"
)

// ErrInvalidExpression wraps XPath compile errors.
var ErrInvalidExpression = errors.New("invalid xpath")

// Match is one selected node. Attribute and text results resolve to their
// owning element; Attr names the attribute for attribute results.
type Match struct {
	ID    doctree.NodeID `json:"id"`
	Name  string         `json:"name"`
	Attr  string         `json:"attr,omitempty"`
	Begin int            `json:"begin"`
	End   int            `json:"end"`
	Value string         `json:"value"`
}

// Index is a parsed view of a Document that can run many queries.
type Index struct {
	doc   *doctree.Document
	top   *xmlquery.Node
	nodes map[*xmlquery.Node]doctree.NodeID
}

// NewIndex renders doc and parses it back with xmlquery, pairing elements of
// both trees by document order.
func NewIndex(doc *doctree.Document) (*Index, error) {
	var buf bytes.Buffer
	w := event.NewWriter(&buf)
	if err := serialize.Replay(doc, w); err != nil {
		return nil, fmt.Errorf("render for query: %w", err)
	}
	idx := &Index{doc: doc, nodes: make(map[*xmlquery.Node]doctree.NodeID)}
	if buf.Len() == 0 {
		return idx, nil
	}

	top, err := xmlquery.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse for query: %w", err)
	}
	idx.top = top

	ids := doc.Elements()
	next := 0
	stack := []*xmlquery.Node{top}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type == xmlquery.ElementNode {
			if next >= len(ids) {
				return nil, fmt.Errorf("parse for query: more elements than the document holds")
			}
			idx.nodes[n] = ids[next]
			next++
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	if next != len(ids) {
		return nil, fmt.Errorf("parse for query: %d of %d elements paired", next, len(ids))
	}
	return idx, nil
}

// Select returns the nodes expr selects, in document order. Expressions
// that evaluate to a number, string or boolean select nothing; use Evaluate.
func (idx *Index) Select(expr string) ([]Match, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if idx.top == nil {
		return nil, nil
	}

	var out []Match
	for _, n := range xmlquery.QuerySelectorAll(idx.top, compiled) {
		owner, attr := n, ""
		switch n.Type {
		case xmlquery.AttributeNode:
			attr = n.Data
			owner = n.Parent
		case xmlquery.TextNode, xmlquery.CharDataNode:
			owner = n.Parent
		}
		id, ok := idx.nodes[owner]
		if !ok {
			continue
		}
		node, _ := idx.doc.Node(id)
		out = append(out, Match{
			ID:    id,
			Name:  node.Name.String(),
			Attr:  attr,
			Begin: node.Begin,
			End:   node.End,
			Value: n.InnerText(),
		})
	}
	return out, nil
}

// Evaluate returns the value of expr: a float64, string or bool for
// scalar expressions, or []Match for node sets.
func (idx *Index) Evaluate(expr string) (any, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if idx.top == nil {
		return nil, nil
	}
	switch v := compiled.Evaluate(xmlquery.CreateXPathNavigator(idx.top)).(type) {
	case *xpath.NodeIterator:
		return idx.Select(expr)
	default:
		return v, nil
	}
}

// Select is a one-shot NewIndex plus Select.
func Select(doc *doctree.Document, expr string) ([]Match, error) {
	idx, err := NewIndex(doc)
	if err != nil {
		return nil, err
	}
	return idx.Select(expr)
}
