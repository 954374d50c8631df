package parser

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// TextSource handles plain text files: one p element per blank-line
// separated paragraph under a document root.
type TextSource struct{}

func (s *TextSource) Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	e := newEmitter(ctx, h)
	e.start("document", doctree.Attr("title", Title(filename)))

	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			e.leaf("p", current.String())
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return err
	}
	return e.finish()
}
