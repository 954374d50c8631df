package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/ingest"
)

func emitXML(t *testing.T, input string) (*event.Recorder, error) {
	t.Helper()
	rec := &event.Recorder{}
	err := (&XMLSource{}).Emit(context.Background(), strings.NewReader(input), "in.xml", rec)
	return rec, err
}

func TestXMLSource_Namespaces(t *testing.T) {
	rec, err := emitXML(t, `<?xml version="1.0"?>
<tei:TEI xmlns:tei="urn:tei" xml:lang="en"><tei:p rend="b">a &amp; b</tei:p></tei:TEI>`)
	require.NoError(t, err)

	kinds := make([]event.Kind, 0, len(rec.Events))
	for _, e := range rec.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []event.Kind{
		event.KindStartDocument,
		event.KindCharacters,
		event.KindStartPrefixMapping,
		event.KindStartElement,
		event.KindStartElement,
		event.KindCharacters,
		event.KindEndElement,
		event.KindEndElement,
		event.KindEndPrefixMapping,
		event.KindEndDocument,
	}, kinds)

	mapping := rec.Events[2]
	assert.Equal(t, "tei", mapping.Prefix)
	assert.Equal(t, "urn:tei", mapping.URI)

	root := rec.Events[3]
	assert.Equal(t, doctree.QName{Space: "urn:tei", Local: "TEI", Prefix: "tei"}, root.Name)
	require.Len(t, root.Attrs, 1, "xmlns declarations are not attributes")
	assert.Equal(t, doctree.QName{Space: XMLNamespace, Local: "lang", Prefix: "xml"}, root.Attrs[0].Name)
	assert.Equal(t, "en", root.Attrs[0].Value)

	p := rec.Events[4]
	assert.Equal(t, "tei:p", p.Name.String())
	assert.Equal(t, doctree.QName{Local: "rend"}, p.Attrs[0].Name, "unprefixed attributes have no namespace")
	assert.Equal(t, "a & b", rec.Events[5].Text)
	assert.Equal(t, "tei", rec.Events[8].Prefix)
}

func TestXMLSource_DefaultNamespace(t *testing.T) {
	rec, err := emitXML(t, `<a xmlns="urn:x"><b/></a>`)
	require.NoError(t, err)
	assert.Equal(t, "<a><b></b></a>", rec.Markup())

	var b event.Event
	for _, e := range rec.Events {
		if e.Kind == event.KindStartElement && e.Name.Local == "b" {
			b = e
		}
	}
	assert.Equal(t, "urn:x", b.Name.Space)
	assert.Empty(t, b.Name.Prefix)
}

func TestXMLSource_SyntaxErrors(t *testing.T) {
	cases := map[string]string{
		"mismatched end":   `<a><b></a>`,
		"unbound element":  `<x:a/>`,
		"unbound attr":     `<a y:k="v"/>`,
		"unknown entity":   `<a>&nbsp;</a>`,
		"stray end":        `</a>`,
		"truncated markup": `<a><b`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := emitXML(t, input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestXMLSource_TruncatedDocument(t *testing.T) {
	rec, err := emitXML(t, `<a><b>text`)
	require.NoError(t, err)
	assert.Zero(t, rec.Count(event.KindEndDocument))

	b := ingest.New(ingest.Options{})
	require.NoError(t, rec.Replay(b))
	_, err = b.Document()
	assert.ErrorIs(t, err, event.ErrMalformedStream)
}

func TestXMLSource_Charset(t *testing.T) {
	rec, err := emitXML(t, "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a>caf\xe9</a>")
	require.NoError(t, err)
	assert.Equal(t, "<a>café</a>", rec.Markup())
}

func TestXMLSource_SkipsCommentsAndInstructions(t *testing.T) {
	rec, err := emitXML(t, `<!DOCTYPE a><a><!-- note --><?pi data?>x<![CDATA[<y>]]></a>`)
	require.NoError(t, err)
	assert.Equal(t, "<a>x<y></a>", rec.Markup())
}

func TestXMLSource_HandlerErrorStops(t *testing.T) {
	b := ingest.New(ingest.Options{})
	err := (&XMLSource{}).Emit(context.Background(), strings.NewReader(`<a/><b/>`), "two.xml", b)
	assert.ErrorIs(t, err, event.ErrMalformedStream, "a second root is rejected by the builder")
}

func TestXMLSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&XMLSource{}).Emit(ctx, strings.NewReader(`<a/>`), "a.xml", &event.Recorder{})
	assert.ErrorIs(t, err, context.Canceled)
}
