// Command xmlgest converts files through the ingestion pipeline locally,
// without the HTTP service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/dgallion1/xmlgest/internal/config"
	"github.com/dgallion1/xmlgest/internal/convert"
	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/query"
)

// Globals are the conversion flags shared by every command.
type Globals struct {
	Policy      string   `help:"Content policy file (YAML)." type:"existingfile"`
	XML11       bool     `name:"xml11" help:"Apply XML 1.1 character rules."`
	Replacement string   `help:"Replacement for illegal characters."`
	Block       []string `help:"Block element names that delimit segments." sep:","`
	Nested      bool     `help:"Split sentences inside block zones."`
	Uncaptured  []string `help:"Elements whose text is kept out of the buffer." sep:","`
	MaxDepth    int      `name:"max-depth" help:"Drop elements nested deeper than this."`
	Debug       bool     `help:"Log conversion details to stderr."`

	stdout io.Writer
	stderr io.Writer
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Ingest    IngestCmd    `cmd:"" help:"Ingest a file and print the document as JSON."`
	Sanitize  SanitizeCmd  `cmd:"" help:"Stream a file through the policy and print XML."`
	Roundtrip RoundtripCmd `cmd:"" help:"Ingest a file, then render the document back to XML."`
	Query     QueryCmd     `cmd:"" help:"Evaluate an XPath expression against an ingested file."`
}

func (g *Globals) converter() (*convert.Converter, error) {
	level := slog.LevelWarn
	if g.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(g.stderr, &slog.HandlerOptions{Level: level}))

	version := "1.0"
	if g.XML11 {
		version = "1.1"
	}
	cfg := config.Config{
		PolicyFile:             g.Policy,
		XMLVersion:             version,
		ReplacementChar:        g.Replacement,
		BlockElements:          g.Block,
		SplitSentencesInBlocks: g.Nested,
		UncapturedElements:     g.Uncaptured,
		MaxElementDepth:        g.MaxDepth,
		HTMLPrefilter:          true,
		PDFFallbackPdftotext:   true,
	}
	return cfg.Converter(log)
}

func (g *Globals) ingest(path string) (*convert.Converter, *doctree.Document, error) {
	conv, err := g.converter()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	doc, report, err := conv.Ingest(context.Background(), f, path)
	if err != nil {
		return nil, nil, err
	}
	conv.Logger.Debug("report", "file", path, "elements", report.Elements, "units", report.Units, "segments", report.Segments)
	return conv, doc, nil
}

type IngestCmd struct {
	Path string `arg:"" help:"File to ingest." type:"existingfile"`
}

func (c *IngestCmd) Run(g *Globals) error {
	_, doc, err := g.ingest(c.Path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

type SanitizeCmd struct {
	Path string `arg:"" help:"File to sanitize." type:"existingfile"`
}

func (c *SanitizeCmd) Run(g *Globals) error {
	conv, err := g.converter()
	if err != nil {
		return err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := conv.Sanitize(context.Background(), f, c.Path, &buf); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(g.stdout)
	return err
}

type RoundtripCmd struct {
	Path string `arg:"" help:"File to ingest and render." type:"existingfile"`
}

func (c *RoundtripCmd) Run(g *Globals) error {
	conv, doc, err := g.ingest(c.Path)
	if err != nil {
		return err
	}
	if err := conv.Render(doc, g.stdout, nil); err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.stdout)
	return err
}

type QueryCmd struct {
	Path  string `arg:"" help:"File to ingest." type:"existingfile"`
	XPath string `arg:"" name:"xpath" help:"XPath expression."`
}

func (c *QueryCmd) Run(g *Globals) error {
	_, doc, err := g.ingest(c.Path)
	if err != nil {
		return err
	}
	idx, err := query.NewIndex(doc)
	if err != nil {
		return err
	}
	result, err := idx.Evaluate(c.XPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	cli.stdout, cli.stderr = stdout, stderr
	parser, err := kong.New(&cli,
		kong.Name("xmlgest"),
		kong.Description("Convert documents into offset-indexed XML and back."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "xmlgest:", err)
		os.Exit(1)
	}
}
