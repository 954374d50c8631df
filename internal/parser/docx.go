package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// DOCXSource handles .docx files. Heading-styled paragraphs open nested
// section elements; other paragraphs become p elements carrying their style.
type DOCXSource struct{}

func (s *DOCXSource) Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "xmlgest-docx-*.docx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return fmt.Errorf("parse docx: %w", err)
	}

	e := newEmitter(ctx, h)
	e.start("document", doctree.Attr("title", Title(filename)))
	secs := newSections(e)

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if level := docxHeadingLevel(para); level > 0 {
			secs.heading(level, text)
			continue
		}
		var attrs []doctree.Attribute
		if style := docxStyle(para); style != "" {
			attrs = append(attrs, doctree.Attr("style", style))
		}
		e.leaf("p", text, attrs...)
	}
	secs.close()
	return e.finish()
}

func docxStyle(para *docx.Paragraph) string {
	if para.Properties == nil || para.Properties.Style == nil {
		return ""
	}
	return para.Properties.Style.Val
}

func docxHeadingLevel(para *docx.Paragraph) int {
	return docxHeadingStyleLevel(docxStyle(para))
}

// docxHeadingStyleLevel maps "Heading1" through "Heading6" (any case,
// spaces ignored) to a level, or 0.
func docxHeadingStyleLevel(style string) int {
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if len(style) == len("heading1") && strings.HasPrefix(style, "heading") {
		if d := style[len(style)-1]; d >= '1' && d <= '6' {
			return int(d - '0')
		}
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
