package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/xmlgest/internal/event"
)

func TestMarkdownSource_HeadingHierarchy(t *testing.T) {
	input := `# Title

Intro.

## A

A text.

### A1

A1 text.

## B

B text.
`
	rec := emit(t, &MarkdownSource{}, input, "doc.md")

	want := "<document>" +
		"<section><h1>Title</h1>\n<p>Intro.</p>\n" +
		"<section><h2>A</h2>\n<p>A text.</p>\n" +
		"<section><h3>A1</h3>\n<p>A1 text.</p></section></section>\n" +
		"<section><h2>B</h2>\n<p>B text.</p></section>" +
		"</section></document>"
	if got := rec.Markup(); got != want {
		t.Errorf("markup:\n got %q\nwant %q", got, want)
	}
}

func TestMarkdownSource_NoHeadings(t *testing.T) {
	rec := emit(t, &MarkdownSource{}, "Just a paragraph.\n\nAnother one.\n", "plain.md")
	if got, want := rec.Markup(), "<document><p>Just a paragraph.</p>\n<p>Another one.</p></document>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarkdownSource_Inlines(t *testing.T) {
	rec := emit(t, &MarkdownSource{}, "Some *em*, **strong**, `code` and [link](http://x.example).\n", "inline.md")

	want := "<document><p>Some <em>em</em>, <strong>strong</strong>, <code>code</code> and <a>link</a>.</p></document>"
	if got := rec.Markup(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	var href string
	for _, e := range rec.Events {
		if e.Kind == event.KindStartElement && e.Name.Local == "a" {
			href = e.Attrs[0].Value
		}
	}
	if href != "http://x.example" {
		t.Errorf("expected href on link, got %q", href)
	}
}

func TestMarkdownSource_ListsAndCode(t *testing.T) {
	input := "- one\n- two\n\n```go\nfmt.Println()\n```\n"
	rec := emit(t, &MarkdownSource{}, input, "list.md")

	got := rec.Markup()
	for _, frag := range []string{"<ul><li>one", "<li>two", "</li></ul>", "<pre>fmt.Println()</pre>"} {
		if !strings.Contains(got, frag) {
			t.Errorf("expected %q in %q", frag, got)
		}
	}
	for _, e := range rec.Events {
		if e.Kind == event.KindStartElement && e.Name.Local == "pre" {
			if len(e.Attrs) != 1 || e.Attrs[0].Value != "go" {
				t.Errorf("expected lang attribute, got %+v", e.Attrs)
			}
		}
	}
}

func TestMarkdownSource_Balanced(t *testing.T) {
	input := "# T\n\n> quoted *text*\n\n1. a\n2. b\n\n---\n\n![alt text](img.png)\n"
	rec := emit(t, &MarkdownSource{}, input, "mixed.md")
	if s, e := rec.Count(event.KindStartElement), rec.Count(event.KindEndElement); s != e {
		t.Fatalf("unbalanced events: %d starts, %d ends", s, e)
	}
	if !strings.Contains(rec.Markup(), "<blockquote>") || !strings.Contains(rec.Markup(), "<ol>") {
		t.Errorf("expected blockquote and ordered list in %q", rec.Markup())
	}
}
