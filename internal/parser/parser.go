// Package parser holds the event sources: one per input format, each turning
// raw bytes into markup events for an event.Handler.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// Source emits the events for one input. Emit stops at the first handler
// error or context cancellation and returns it.
type Source interface {
	Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error
}

// ErrUnsupportedFormat is returned by ForFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported file extension")

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".xml":      true,
	".xhtml":    true,
	".tei":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes the sources ForFile returns.
type Options struct {
	// HTMLPrefilter runs HTML through a bluemonday UGC policy before parsing.
	HTMLPrefilter bool
	// PDFFallbackPdftotext shells out to pdftotext when the Go reader fails.
	PDFFallbackPdftotext bool
}

// ForFile returns the source for a filename with default options.
func ForFile(filename string) (Source, error) {
	return Options{}.ForFile(filename)
}

// ForFile returns the appropriate source for a filename.
func (o Options) ForFile(filename string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xml", ".xhtml", ".tei":
		return &XMLSource{}, nil
	case ".txt":
		return &TextSource{}, nil
	case ".md", ".markdown":
		return &MarkdownSource{}, nil
	case ".csv":
		return &CSVSource{}, nil
	case ".html", ".htm":
		return &HTMLSource{Prefilter: o.HTMLPrefilter}, nil
	case ".pdf":
		return &PDFSource{FallbackPdftotext: o.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXSource{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Title strips the directory and extension from a filename.
func Title(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// emitter writes balanced events for the sources that synthesize markup.
// The first error sticks and every later call is a no-op.
type emitter struct {
	ctx     context.Context
	h       event.Handler
	open    []doctree.QName
	needSep bool
	err     error
}

func newEmitter(ctx context.Context, h event.Handler) *emitter {
	e := &emitter{ctx: ctx, h: h}
	if err := ctx.Err(); err != nil {
		e.err = err
		return e
	}
	e.err = h.StartDocument()
	return e
}

func (e *emitter) start(local string, attrs ...doctree.Attribute) {
	if e.err != nil {
		return
	}
	if e.err = e.ctx.Err(); e.err != nil {
		return
	}
	name := doctree.Name(local)
	e.open = append(e.open, name)
	e.err = e.h.StartElement(name, attrs)
}

// block starts a block element, separating it from the previous block with
// a newline so segmentation sees a boundary.
func (e *emitter) block(local string, attrs ...doctree.Attribute) {
	if e.needSep {
		e.text("\n")
		e.needSep = false
	}
	e.start(local, attrs...)
}

func (e *emitter) text(s string) {
	if e.err != nil || s == "" {
		return
	}
	e.err = e.h.Characters(s)
}

func (e *emitter) end() {
	if e.err != nil || len(e.open) == 0 {
		return
	}
	name := e.open[len(e.open)-1]
	e.open = e.open[:len(e.open)-1]
	e.err = e.h.EndElement(name)
}

// endBlock closes the innermost element and requests a separator before the
// next block.
func (e *emitter) endBlock() {
	e.end()
	e.needSep = true
}

// leaf emits a block element holding only text.
func (e *emitter) leaf(local, text string, attrs ...doctree.Attribute) {
	e.block(local, attrs...)
	e.text(text)
	e.endBlock()
}

// closeTo closes elements until depth remain open.
func (e *emitter) closeTo(depth int) {
	for len(e.open) > depth && e.err == nil {
		e.endBlock()
	}
}

func (e *emitter) finish() error {
	e.closeTo(0)
	if e.err != nil {
		return e.err
	}
	return e.h.EndDocument()
}

// sections nests content under section elements by heading level, the way
// an outline does: a heading closes every open section of the same or
// deeper level.
type sections struct {
	e     *emitter
	base  int
	stack []int
}

func newSections(e *emitter) *sections {
	return &sections{e: e, base: len(e.open)}
}

func (s *sections) heading(level int, title string) {
	for len(s.stack) > 0 && s.stack[len(s.stack)-1] >= level {
		s.stack = s.stack[:len(s.stack)-1]
		s.e.closeTo(s.base + len(s.stack))
	}
	s.e.block("section", doctree.Attr("level", fmt.Sprint(level)))
	s.stack = append(s.stack, level)
	s.e.leaf(fmt.Sprintf("h%d", level), title)
}

func (s *sections) close() {
	s.stack = nil
	s.e.closeTo(s.base)
}
