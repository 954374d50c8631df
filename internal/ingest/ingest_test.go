package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/xmlchar"
)

// feed drives h with a compact script: "<name" opens, ">name" closes,
// anything else is text. "^" and "$" are document start and end.
func feed(h event.Handler, script ...string) error {
	for _, s := range script {
		var err error
		switch {
		case s == "^":
			err = h.StartDocument()
		case s == "$":
			err = h.EndDocument()
		case len(s) > 1 && s[0] == '<':
			err = h.StartElement(doctree.Name(s[1:]), nil)
		case len(s) > 1 && s[0] == '>':
			err = h.EndElement(doctree.Name(s[1:]))
		default:
			err = h.Characters(s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func TestBuilder_BuildsOffsets(t *testing.T) {
	b := New(Options{})
	require.NoError(t, feed(b, "^", "\n", "<root", "<child", "text", ">child", "tail", ">root", "\n", "$"))

	doc, err := b.Document()
	require.NoError(t, err)
	require.NoError(t, doc.Check())

	assert.Equal(t, "texttail", doc.Text(), "whitespace outside the root is discarded")
	root, _ := doc.Node(doc.Root())
	assert.Equal(t, 0, root.Begin)
	assert.Equal(t, doc.Len(), root.End)
	require.Len(t, root.Children, 2)

	child, _ := doc.Node(root.Children[0])
	assert.Equal(t, "child", child.Name.Local)
	assert.Equal(t, [2]int{0, 4}, [2]int{child.Begin, child.End})
}

func TestBuilder_AttributesCopiedAndFiltered(t *testing.T) {
	b := New(Options{})
	attrs := []doctree.Attribute{doctree.Attr("a", "x\x01y")}
	require.NoError(t, b.StartDocument())
	require.NoError(t, b.StartElement(doctree.Name("r"), attrs))
	attrs[0].Value = "mutated"
	require.NoError(t, b.EndElement(doctree.Name("r")))
	require.NoError(t, b.EndDocument())

	doc, err := b.Document()
	require.NoError(t, err)
	root, _ := doc.Node(doc.Root())
	assert.Equal(t, "x\uFFFDy", root.Attrs[0].Value)
	assert.Equal(t, 1, b.Replaced())
}

func TestBuilder_ReplacementKeepsOffsets(t *testing.T) {
	f, err := xmlchar.NewFilter(xmlchar.XML10, '?')
	require.NoError(t, err)
	b := New(Options{Filter: f})
	require.NoError(t, feed(b, "^", "<r", "a\x01b", "<i", "c", ">i", ">r", "$"))

	doc, err := b.Document()
	require.NoError(t, err)
	assert.Equal(t, "a?bc", doc.Text())
	assert.Equal(t, 1, b.Replaced())

	root, _ := doc.Node(doc.Root())
	inner, _ := doc.Node(root.Children[1])
	assert.Equal(t, [2]int{3, 4}, [2]int{inner.Begin, inner.End})
}

func TestBuilder_InvalidUTF8CountsAsReplaced(t *testing.T) {
	f, err := xmlchar.NewFilter(xmlchar.XML10, '?')
	require.NoError(t, err)
	b := New(Options{Filter: f})
	require.NoError(t, feed(b, "^", "<r", "a\xffb\xfe", ">r", "$"))

	doc, err := b.Document()
	require.NoError(t, err)
	assert.Equal(t, "a?b?", doc.Text())
	assert.Equal(t, 2, b.Replaced())
}

func TestBuilder_XML11KeepsControlCharacters(t *testing.T) {
	f, err := xmlchar.NewFilter(xmlchar.XML11, xmlchar.DefaultReplacement)
	require.NoError(t, err)
	b := New(Options{Filter: f})
	require.NoError(t, feed(b, "^", "<r", "a\x01b", ">r", "$"))
	doc, err := b.Document()
	require.NoError(t, err)
	assert.Equal(t, "a\x01b", doc.Text())
}

func TestBuilder_CaptureOverride(t *testing.T) {
	b := New(Options{Capture: map[string]bool{"script": false, "keep": true}})
	require.NoError(t, feed(b, "^", "<r", "a", "<script", "x()", "<keep", "k", ">keep", "<em", "y", ">em", ">script", "b", ">r", "$"))

	doc, err := b.Document()
	require.NoError(t, err)
	require.NoError(t, doc.Check())
	assert.Equal(t, "akb", doc.Text())

	var literals []string
	require.NoError(t, doc.Walk(func(id doctree.NodeID, n doctree.Node, _ int, entering bool) error {
		if n.Kind == doctree.KindText && !n.Captured {
			literals = append(literals, n.Literal)
		}
		return nil
	}))
	assert.Equal(t, []string{"x()", "y"}, literals, "uncaptured flag is inherited by descendants")
}

func TestBuilder_OnCloseOrderAndDepth(t *testing.T) {
	type seen struct {
		name  string
		depth int
		end   int
	}
	var got []seen
	b := New(Options{OnClose: func(c Closed) error {
		n, _ := c.Doc.Node(c.ID)
		got = append(got, seen{n.Name.Local, c.Depth, n.End})
		return nil
	}})
	require.NoError(t, feed(b, "^", "<a", "<b", "xy", ">b", "z", ">a", "$"))
	assert.Equal(t, []seen{{"b", 1, 2}, {"a", 0, 3}}, got)
}

func TestBuilder_OnCloseErrorAborts(t *testing.T) {
	stop := errors.New("stop")
	b := New(Options{OnClose: func(Closed) error { return stop }})
	err := feed(b, "^", "<a", ">a", "$")
	assert.ErrorIs(t, err, stop)

	doc, err := b.Document()
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, stop)
}

func TestBuilder_MalformedStreams(t *testing.T) {
	cases := map[string][]string{
		"end with no open element": {"^", ">a"},
		"mismatched end":           {"^", "<a", ">b"},
		"end-document while open":  {"^", "<a", "$"},
		"re-entrant start":         {"^", "<a", "^"},
		"event before start":       {"<a"},
		"second root":              {"^", "<a", ">a", "<b"},
		"event after end":          {"^", "<a", ">a", "$", "<b"},
	}
	for name, script := range cases {
		t.Run(name, func(t *testing.T) {
			b := New(Options{})
			err := feed(b, script...)
			require.Error(t, err)
			assert.ErrorIs(t, err, event.ErrMalformedStream)

			doc, derr := b.Document()
			assert.Nil(t, doc, "partial documents are discarded")
			assert.ErrorIs(t, derr, event.ErrMalformedStream)

			assert.Equal(t, err, b.StartDocument(), "failure is sticky")
		})
	}
}

func TestBuilder_PrematureEndOfStream(t *testing.T) {
	b := New(Options{})
	require.NoError(t, feed(b, "^", "<a", "<b", "text"))

	doc, err := b.Document()
	assert.Nil(t, doc)
	var mse *event.MalformedStreamError
	require.True(t, errors.As(err, &mse))
	assert.Equal(t, "end-of-stream", mse.Op)

	_, err = New(Options{}).Document()
	assert.ErrorIs(t, err, event.ErrMalformedStream)
}

func TestBuilder_EmptyDocument(t *testing.T) {
	b := New(Options{})
	require.NoError(t, feed(b, "^", "  ", "$"))
	doc, err := b.Document()
	require.NoError(t, err)
	assert.Equal(t, doctree.NoNode, doc.Root())
	assert.Zero(t, doc.Len())
}

func TestBuilder_Segmentation(t *testing.T) {
	script := []string{"^", "<body", "<p", "One. Two.", ">p", "\n", "<p", "Three", ">p", ">body", "$"}

	b := New(Options{BlockElements: []string{"p"}, NestedSegments: true})
	require.NoError(t, feed(b, script...))
	doc, err := b.Document()
	require.NoError(t, err)
	assert.Equal(t, []doctree.Segment{{Begin: 0, End: 4}, {Begin: 5, End: 9}, {Begin: 10, End: 15}}, doc.Segments())

	b = New(Options{BlockElements: []string{"p"}})
	require.NoError(t, feed(b, script...))
	doc, err = b.Document()
	require.NoError(t, err)
	assert.Equal(t, []doctree.Segment{{Begin: 0, End: 9}, {Begin: 10, End: 15}}, doc.Segments())

	b = New(Options{})
	require.NoError(t, feed(b, script...))
	doc, err = b.Document()
	require.NoError(t, err)
	assert.Empty(t, doc.Segments(), "no block elements, no segmentation")
}

func TestBuilder_DeepNestingIsIterative(t *testing.T) {
	const depth = 100000
	b := New(Options{})
	require.NoError(t, b.StartDocument())
	for i := 0; i < depth; i++ {
		require.NoError(t, b.StartElement(doctree.Name("d"), nil))
	}
	require.NoError(t, b.Characters("x"))
	for i := 0; i < depth; i++ {
		require.NoError(t, b.EndElement(doctree.Name("d")))
	}
	require.NoError(t, b.EndDocument())

	doc, err := b.Document()
	require.NoError(t, err)
	require.NoError(t, doc.Check())
	assert.Equal(t, depth+1, doc.NodeCount())
}
