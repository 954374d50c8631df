package convert

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/ingest"
	"github.com/dgallion1/xmlgest/internal/parser"
	"github.com/dgallion1/xmlgest/internal/policy"
	"github.com/dgallion1/xmlgest/internal/sanitize"
)

const decl = `<?xml version="1.0" encoding="UTF-8"?>`

const sample = `<?xml version="1.0"?>
<root><child id="c1" onclick="x()">text</child><script>alert(1)</script></root>
`

func strictPolicy(t *testing.T) *policy.Table {
	t.Helper()
	table, err := policy.NewBuilder().
		DefaultElement(policy.Drop).
		Allow("root", "child").
		Prune("script").
		AllowGlobalAttribute("id").
		DefaultAttribute(policy.AttrDrop).
		Build()
	require.NoError(t, err)
	return table
}

func TestIngest_WithPolicy(t *testing.T) {
	c := &Converter{Policy: strictPolicy(t)}
	doc, report, err := c.Ingest(context.Background(), strings.NewReader(sample), "in.xml")
	require.NoError(t, err)
	require.NoError(t, doc.Check())

	assert.Equal(t, "text", doc.Text())
	assert.Equal(t, 2, report.Elements)
	assert.Equal(t, 4, report.Units)
	require.NotNil(t, report.Sanitize)
	assert.Equal(t, 1, report.Sanitize.Pruned)
	assert.Equal(t, 1, report.Sanitize.AttributesDropped)
}

func TestIngest_RoundTrip(t *testing.T) {
	c := &Converter{}
	doc, report, err := c.Ingest(context.Background(), strings.NewReader(sample), "in.xml")
	require.NoError(t, err)
	assert.Nil(t, report.Sanitize)

	var buf bytes.Buffer
	require.NoError(t, c.Render(doc, &buf, nil))
	assert.Equal(t, decl+`<root><child id="c1" onclick="x()">text</child><script>alert(1)</script></root>`, buf.String())

	buf.Reset()
	require.NoError(t, c.Render(doc, &buf, strictPolicy(t)))
	assert.Equal(t, decl+`<root><child id="c1">text</child></root>`, buf.String())
}

func TestIngest_Segments(t *testing.T) {
	c := &Converter{Options: ingest.Options{BlockElements: []string{"p"}}}
	doc, report, err := c.Ingest(context.Background(), strings.NewReader("One.\n\nTwo."), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Segments)
	assert.Equal(t, "One.\nTwo.", doc.Text())
}

func TestIngest_ReplacesIllegalCharacters(t *testing.T) {
	c := &Converter{}
	doc, report, err := c.Ingest(context.Background(), strings.NewReader("a\x01b"), "ctl.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replaced)
	assert.Equal(t, "a\uFFFDb", doc.Text())
}

func TestIngest_Errors(t *testing.T) {
	c := &Converter{}
	_, _, err := c.Ingest(context.Background(), strings.NewReader("x"), "in.rtf")
	assert.ErrorIs(t, err, parser.ErrUnsupportedFormat)

	_, _, err = c.Ingest(context.Background(), strings.NewReader("<a><b>"), "cut.xml")
	assert.ErrorIs(t, err, event.ErrMalformedStream)

	_, _, err = c.Ingest(context.Background(), strings.NewReader("<a></b>"), "bad.xml")
	assert.ErrorIs(t, err, parser.ErrSyntax)
}

func TestSanitize_Streams(t *testing.T) {
	c := &Converter{Policy: strictPolicy(t)}
	var buf bytes.Buffer
	st, err := c.Sanitize(context.Background(), strings.NewReader(sample), "in.xml", &buf)
	require.NoError(t, err)
	assert.Equal(t, decl+`<root><child id="c1">text</child></root>`, buf.String())
	assert.Equal(t, sanitize.Stats{Elements: 3, Emitted: 2, Pruned: 1, AttributesDropped: 1, TextDropped: 1}, st)
}

func TestSanitize_TruncatedInputFails(t *testing.T) {
	c := &Converter{}
	var buf bytes.Buffer
	_, err := c.Sanitize(context.Background(), strings.NewReader("<root><child>text"), "in.xml", &buf)
	require.ErrorIs(t, err, event.ErrMalformedStream)
	assert.Zero(t, buf.Len(), "no partial markup is written")
}

func TestSanitize_RootRemovedByPolicy(t *testing.T) {
	table, err := policy.NewBuilder().Drop("r").Build()
	require.NoError(t, err)
	c := &Converter{Policy: table}
	input := "<r>lead<a>1</a><b>2</b></r>"

	var buf bytes.Buffer
	_, err = c.Sanitize(context.Background(), strings.NewReader(input), "in.xml", &buf)
	assert.ErrorIs(t, err, sanitize.ErrRootRemoved)
	assert.Zero(t, buf.Len())

	_, _, err = c.Ingest(context.Background(), strings.NewReader(input), "in.xml")
	assert.ErrorIs(t, err, sanitize.ErrRootRemoved)
	assert.NotErrorIs(t, err, event.ErrMalformedStream)
}

func TestSanitize_NilPolicyLegalizes(t *testing.T) {
	c := &Converter{}
	var buf bytes.Buffer
	_, err := c.Sanitize(context.Background(), strings.NewReader("a\x01b & c"), "ctl.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, decl+`<document title="ctl"><p>a`+"\uFFFD"+`b &amp; c</p></document>`, buf.String())
}
