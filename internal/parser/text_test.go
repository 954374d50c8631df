package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/dgallion1/xmlgest/internal/event"
)

func emit(t *testing.T, s Source, input, filename string) *event.Recorder {
	t.Helper()
	rec := &event.Recorder{}
	if err := s.Emit(context.Background(), strings.NewReader(input), filename, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestTextSource_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	rec := emit(t, &TextSource{}, input, "notes.txt")

	want := "<document><p>First paragraph line one.\nFirst paragraph line two.</p>\n" +
		"<p>Second paragraph.</p>\n<p>Third paragraph.</p></document>"
	if got := rec.Markup(); got != want {
		t.Errorf("markup:\n got %q\nwant %q", got, want)
	}

	root := rec.Events[1]
	if len(root.Attrs) != 1 || root.Attrs[0].Value != "notes" {
		t.Errorf("expected title attribute %q, got %+v", "notes", root.Attrs)
	}
	if rec.Count(event.KindEndDocument) != 1 {
		t.Errorf("expected one end-document event")
	}
}

func TestTextSource_EmptyInput(t *testing.T) {
	rec := emit(t, &TextSource{}, "", "empty.txt")
	if got := rec.Markup(); got != "<document></document>" {
		t.Errorf("expected empty document, got %q", got)
	}
}

func TestTextSource_MultipleBlankLines(t *testing.T) {
	// Consecutive blank lines should not produce empty paragraphs.
	rec := emit(t, &TextSource{}, "Para one.\n\n\n\nPara two.", "gaps.txt")
	if n := rec.Count(event.KindStartElement); n != 3 {
		t.Fatalf("expected document plus 2 paragraphs, got %d elements", n)
	}
}

func TestTextSource_WhitespaceOnlyLines(t *testing.T) {
	// Lines with only whitespace are treated as blank.
	rec := emit(t, &TextSource{}, "Para one.\n   \nPara two.", "ws.txt")
	if got, want := rec.Markup(), "<document><p>Para one.</p>\n<p>Para two.</p></document>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&TextSource{}).Emit(ctx, strings.NewReader("text"), "a.txt", &event.Recorder{})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForFile(t *testing.T) {
	cases := map[string]Source{
		"a.xml":      &XMLSource{},
		"b.TEI":      &XMLSource{},
		"c.md":       &MarkdownSource{},
		"d.htm":      &HTMLSource{},
		"e.csv":      &CSVSource{},
		"f.txt":      &TextSource{},
		"g.pdf":      &PDFSource{},
		"h.docx":     &DOCXSource{},
		"i.markdown": &MarkdownSource{},
	}
	for name, want := range cases {
		got, err := ForFile(name)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if gotT, wantT := typeName(got), typeName(want); gotT != wantT {
			t.Errorf("%s: got %s, want %s", name, gotT, wantT)
		}
		if !IsSupportedExtension(name) {
			t.Errorf("%s: expected supported extension", name)
		}
	}

	if _, err := ForFile("x.rtf"); err == nil || !strings.Contains(err.Error(), ".rtf") {
		t.Errorf("expected unsupported format error naming the extension, got %v", err)
	}
	if IsSupportedExtension("x.rtf") {
		t.Errorf("rtf should not be supported")
	}

	src, _ := Options{HTMLPrefilter: true}.ForFile("page.html")
	if h, ok := src.(*HTMLSource); !ok || !h.Prefilter {
		t.Errorf("expected prefiltering html source, got %#v", src)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("/tmp/in/Report.Final.xml"); got != "Report.Final" {
		t.Errorf("got %q", got)
	}
}

func typeName(s Source) string {
	switch s.(type) {
	case *XMLSource:
		return "xml"
	case *MarkdownSource:
		return "markdown"
	case *HTMLSource:
		return "html"
	case *CSVSource:
		return "csv"
	case *TextSource:
		return "text"
	case *PDFSource:
		return "pdf"
	case *DOCXSource:
		return "docx"
	}
	return "unknown"
}
