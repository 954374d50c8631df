// Package segment derives sentence-like segment boundaries over a sealed
// Document's text buffer.
package segment

import (
	"errors"
	"sort"
	"unicode"

	"github.com/dgallion1/xmlgest/internal/doctree"
)

// Span is a [Begin,End) range in UTF-16 code units.
type Span struct {
	Begin int
	End   int
}

// Splitter finds sentence spans in a run of code units. Returned spans are
// relative to the slice, ordered, non-overlapping and already trimmed.
type Splitter interface {
	Split(units []uint16) []Span
}

// ErrOverlappingBlocks is returned when two block elements partially overlap.
var ErrOverlappingBlocks = errors.New("segment: block elements partially overlap")

// Sentences breaks at paragraph gaps (a blank line) and after '.', '!' or
// '?' followed by whitespace.
type Sentences struct{}

func (Sentences) Split(u []uint16) []Span {
	var out []Span
	start := 0
	emit := func(b, e int) {
		if b, e = Trim(u, b, e); b < e {
			out = append(out, Span{Begin: b, End: e})
		}
	}
	for i := 0; i < len(u); i++ {
		switch c := u[i]; {
		case (c == '.' || c == '!' || c == '?') && i+1 < len(u) && isSpace(u[i+1]):
			emit(start, i+1)
			start = i + 1
		case c == '\n':
			j := i + 1
			for j < len(u) && (u[j] == ' ' || u[j] == '\t' || u[j] == '\r') {
				j++
			}
			if j < len(u) && u[j] == '\n' {
				emit(start, i)
				start = j + 1
				i = j
			}
		}
	}
	emit(start, len(u))
	return out
}

func isSpace(c uint16) bool {
	if c >= 0xD800 && c <= 0xDFFF {
		return false
	}
	return unicode.IsSpace(rune(c))
}

// Trim narrows [b,e) past leading and trailing whitespace.
func Trim(u []uint16, b, e int) (int, int) {
	for b < e && isSpace(u[b]) {
		b++
	}
	for e > b && isSpace(u[e-1]) {
		e--
	}
	return b, e
}

// Blocks computes segments for doc from the ranges of elements whose local
// name is in names.
//
// With nested set, block begin and end offsets (plus 0 and the text length)
// cut the text into zones and splitter runs inside each zone; a nil splitter
// makes each zone one segment. Otherwise every outermost block element is one
// segment, blocks already covered by an emitted one are skipped, and the text
// between blocks forms one segment per gap. Segments are trimmed and empty
// ones dropped.
func Blocks(doc *doctree.Document, names []string, nested bool, splitter Splitter) ([]Span, error) {
	if len(names) == 0 {
		return nil, nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}

	var blocks []Span
	for _, id := range doc.Elements() {
		n, _ := doc.Node(id)
		if set[n.Name.Local] {
			blocks = append(blocks, Span{Begin: n.Begin, End: n.End})
		}
	}
	if err := checkNesting(blocks); err != nil {
		return nil, err
	}

	units := doc.Units(0, doc.Len())
	var out []Span
	emit := func(b, e int) {
		if b, e = Trim(units, b, e); b < e {
			out = append(out, Span{Begin: b, End: e})
		}
	}

	if nested {
		bounds := make([]int, 0, 2*len(blocks)+2)
		bounds = append(bounds, 0, len(units))
		for _, b := range blocks {
			bounds = append(bounds, b.Begin, b.End)
		}
		sort.Ints(bounds)
		bounds = dedup(bounds)
		for i := 0; i+1 < len(bounds); i++ {
			a, b := bounds[i], bounds[i+1]
			if splitter == nil {
				emit(a, b)
				continue
			}
			for _, s := range splitter.Split(units[a:b]) {
				emit(a+s.Begin, a+s.End)
			}
		}
		return out, nil
	}

	cursor := 0
	var cover *Span
	for i := range blocks {
		b := blocks[i]
		if cover != nil && b.Begin >= cover.Begin && b.End <= cover.End {
			continue
		}
		emit(cursor, b.Begin)
		emit(b.Begin, b.End)
		cursor = b.End
		cover = &blocks[i]
	}
	emit(cursor, len(units))
	return out, nil
}

// checkNesting verifies that any two ranges are disjoint or nested.
func checkNesting(blocks []Span) error {
	sorted := append([]Span(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Begin != sorted[j].Begin {
			return sorted[i].Begin < sorted[j].Begin
		}
		return sorted[i].End > sorted[j].End
	})
	var open []Span
	for _, s := range sorted {
		for len(open) > 0 && open[len(open)-1].End <= s.Begin {
			open = open[:len(open)-1]
		}
		if len(open) > 0 && s.End > open[len(open)-1].End {
			return ErrOverlappingBlocks
		}
		open = append(open, s)
	}
	return nil
}

func dedup(xs []int) []int {
	out := xs[:0]
	for _, x := range xs {
		if len(out) == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
