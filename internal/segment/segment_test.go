package segment

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

func enc(s string) []uint16 { return utf16.Encode([]rune(s)) }

func texts(u []uint16, spans []Span) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(utf16.Decode(u[s.Begin:s.End]))
	}
	return out
}

// part is either an element (name with children) or a text run.
type part struct {
	name     string
	text     string
	children []part
}

func build(t *testing.T, root part) *doctree.Document {
	t.Helper()
	d := doctree.New()
	var add func(parent doctree.NodeID, p part)
	add = func(parent doctree.NodeID, p part) {
		if p.name == "" {
			if _, err := d.AddText(parent, enc(p.text)); err != nil {
				t.Fatalf("add text: %v", err)
			}
			return
		}
		id, err := d.AddElement(parent, doctree.Name(p.name), nil)
		if err != nil {
			t.Fatalf("add element: %v", err)
		}
		for _, c := range p.children {
			add(id, c)
		}
		if err := d.CloseElement(id); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	add(doctree.NoNode, root)
	if err := d.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	return d
}

func el(name string, children ...part) part { return part{name: name, children: children} }
func tx(s string) part                       { return part{text: s} }

func sampleDoc(t *testing.T) *doctree.Document {
	return build(t, el("body",
		el("p", tx("One. Two.")),
		tx("\n"),
		el("p", tx("Three")),
		tx(" tail"),
	))
}

func TestSentences_Split(t *testing.T) {
	u := enc("Hello world. How are you?  Fine!\n\nNew para")
	got := texts(u, Sentences{}.Split(u))
	want := []string{"Hello world.", "How are you?", "Fine!", "New para"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSentences_NoSplitInsideNumbers(t *testing.T) {
	u := enc("Pi is 3.14 roughly")
	spans := Sentences{}.Split(u)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d: %q", len(spans), texts(u, spans))
	}
}

func TestSentences_BlankLineWithSpaces(t *testing.T) {
	u := enc("first\n  \t\nsecond")
	got := texts(u, Sentences{}.Split(u))
	want := []string{"first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBlocks_NestedRespectsSentences(t *testing.T) {
	d := sampleDoc(t)
	spans, err := Blocks(d, []string{"p"}, true, Sentences{})
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	want := []Span{{0, 4}, {5, 9}, {10, 15}, {16, 20}}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("got %v, want %v", spans, want)
	}
}

func TestBlocks_NestedWithoutSplitter(t *testing.T) {
	d := sampleDoc(t)
	spans, err := Blocks(d, []string{"p"}, true, nil)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	want := []Span{{0, 9}, {10, 15}, {16, 20}}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("got %v, want %v", spans, want)
	}
}

func TestBlocks_ZoneAsSingleSegment(t *testing.T) {
	d := sampleDoc(t)
	spans, err := Blocks(d, []string{"p"}, false, Sentences{})
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	got := texts(enc(d.Text()), spans)
	want := []string{"One. Two.", "Three", "tail"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBlocks_CoveredBlocksSkipped(t *testing.T) {
	d := build(t, el("body", el("div", el("p", tx("A.")), el("p", tx(" B.")))))

	single, err := Blocks(d, []string{"div", "p"}, false, nil)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	if want := []Span{{0, 5}}; !reflect.DeepEqual(single, want) {
		t.Errorf("single: got %v, want %v", single, want)
	}

	nested, err := Blocks(d, []string{"div", "p"}, true, nil)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	if got := texts(enc(d.Text()), nested); !reflect.DeepEqual(got, []string{"A.", "B."}) {
		t.Errorf("nested: got %q", got)
	}
}

func TestBlocks_NoNames(t *testing.T) {
	spans, err := Blocks(sampleDoc(t), nil, true, Sentences{})
	if err != nil || spans != nil {
		t.Fatalf("expected no spans and no error, got %v, %v", spans, err)
	}
}

func TestBlocks_WhitespaceOnlyDiscarded(t *testing.T) {
	d := build(t, el("r", el("p", tx("   ")), el("p", tx("x"))))
	spans, err := Blocks(d, []string{"p"}, false, nil)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	if want := []Span{{3, 4}}; !reflect.DeepEqual(spans, want) {
		t.Fatalf("got %v, want %v", spans, want)
	}
}

func TestCheckNesting(t *testing.T) {
	if err := checkNesting([]Span{{0, 10}, {2, 4}, {4, 4}, {5, 10}, {10, 12}}); err != nil {
		t.Fatalf("nested ranges rejected: %v", err)
	}
	if err := checkNesting([]Span{{0, 5}, {3, 8}}); !errors.Is(err, ErrOverlappingBlocks) {
		t.Fatalf("expected ErrOverlappingBlocks, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	if n := EstimateTokens(""); n != 0 {
		t.Errorf("empty: got %d", n)
	}
	if n := EstimateTokens("x"); n != 1 {
		t.Errorf("single word: got %d", n)
	}
	if n := EstimateTokens(strings.Repeat("word ", 300)); n != 399 {
		t.Errorf("300 words: got %d, want 399", n)
	}
}
