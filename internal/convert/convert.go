// Package convert wires event sources, the sanitizing filter, the ingester
// and the serializer into the three conversions the service offers.
package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
	"github.com/dgallion1/xmlgest/internal/ingest"
	"github.com/dgallion1/xmlgest/internal/parser"
	"github.com/dgallion1/xmlgest/internal/policy"
	"github.com/dgallion1/xmlgest/internal/sanitize"
	"github.com/dgallion1/xmlgest/internal/segment"
	"github.com/dgallion1/xmlgest/internal/serialize"
)

// Converter holds the settings shared by every conversion. The zero value
// ingests without sanitizing and renders XML 1.0.
type Converter struct {
	// Policy, when set, sanitizes events before they reach the ingester.
	Policy *policy.Table
	// Options configures the ingester: character filter, capture
	// overrides and segmentation.
	Options ingest.Options
	// Sources tunes the format-specific event sources.
	Sources parser.Options
	// MaxDepth suppresses elements nested deeper than this; 0 disables it.
	MaxDepth int
	Logger   *slog.Logger
}

// Report summarizes one ingestion.
type Report struct {
	Replaced  int             `json:"replaced"`
	Elements  int             `json:"elements"`
	Segments  int             `json:"segments"`
	Units     int             `json:"units"`
	Tokens    int             `json:"tokens"`
	Sanitize  *sanitize.Stats `json:"sanitize,omitempty"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

func (c *Converter) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *Converter) sanitizer(table *policy.Table, next event.Handler) *sanitize.Filter {
	var opts []sanitize.Option
	if c.MaxDepth > 0 {
		opts = append(opts, sanitize.WithMaxDepth(c.MaxDepth))
	}
	return sanitize.New(table, next, opts...)
}

// Ingest parses r with the source matching filename and builds a Document,
// sanitizing first when a policy is set.
func (c *Converter) Ingest(ctx context.Context, r io.Reader, filename string) (*doctree.Document, Report, error) {
	start := time.Now()
	src, err := c.Sources.ForFile(filename)
	if err != nil {
		return nil, Report{}, err
	}

	b := ingest.New(c.Options)
	var (
		h event.Handler = b
		f *sanitize.Filter
	)
	if c.Policy != nil {
		f = c.sanitizer(c.Policy, b)
		h = f
	}

	if err := src.Emit(ctx, r, filename, h); err != nil {
		return nil, Report{}, fmt.Errorf("ingest %s: %w", filename, err)
	}
	doc, err := b.Document()
	if err != nil {
		return nil, Report{}, fmt.Errorf("ingest %s: %w", filename, err)
	}

	report := Report{
		Replaced:  b.Replaced(),
		Elements:  len(doc.Elements()),
		Segments:  len(doc.Segments()),
		Units:     doc.Len(),
		Tokens:    segment.EstimateTokens(doc.Text()),
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	if f != nil {
		st := f.Stats()
		report.Sanitize = &st
	}
	c.logger().Debug("ingested document",
		"file", filename,
		"elements", report.Elements,
		"units", report.Units,
		"replaced", report.Replaced,
		"segments", report.Segments,
	)
	return doc, report, nil
}

// Sanitize streams r through the policy straight to w as XML without
// building a Document. A nil Policy passes everything through, which still
// normalizes the markup and replaces illegal characters. Input that ends
// before the document is complete is a MalformedStreamError; w may then hold
// a partial prefix and must be discarded.
func (c *Converter) Sanitize(ctx context.Context, r io.Reader, filename string, w io.Writer) (sanitize.Stats, error) {
	src, err := c.Sources.ForFile(filename)
	if err != nil {
		return sanitize.Stats{}, err
	}
	out := event.NewWriter(w, event.WithDeclaration(c.Options.Filter.Version().String()))
	leg := &legalizer{Handler: out, filter: c.Options.Filter}
	f := c.sanitizer(c.Policy, leg)

	if err := src.Emit(ctx, r, filename, f); err != nil {
		return f.Stats(), fmt.Errorf("sanitize %s: %w", filename, err)
	}
	if !out.Done() {
		return f.Stats(), fmt.Errorf("sanitize %s: %w", filename,
			event.Malformed("end-of-stream", "input ended before the document was complete"))
	}
	c.logger().Debug("sanitized document",
		"file", filename,
		"emitted", f.Stats().Emitted,
		"suppressed", f.Stats().Suppressed,
		"pruned", f.Stats().Pruned,
		"replaced", leg.replaced,
	)
	return f.Stats(), nil
}

// Render writes doc as XML. A non-nil table sanitizes the replayed events
// on the way out.
func (c *Converter) Render(doc *doctree.Document, w io.Writer, table *policy.Table) error {
	out := event.NewWriter(w, event.WithDeclaration(c.Options.Filter.Version().String()))
	var h event.Handler = out
	if table != nil {
		h = c.sanitizer(table, out)
	}
	if err := serialize.Replay(doc, h); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return out.Flush()
}
