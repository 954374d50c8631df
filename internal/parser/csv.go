package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/event"
)

// CSVSource handles CSV files. The first record names the columns; every
// later record becomes a row of cells carrying their column name.
type CSVSource struct{}

func (s *CSVSource) Emit(ctx context.Context, r io.Reader, filename string, h event.Handler) error {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	e := newEmitter(ctx, h)
	e.start("table", doctree.Attr("title", Title(filename)))

	var headers []string
	for n := 0; e.err == nil; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("parse csv: %w", err)
		}
		if headers == nil {
			headers = record
			continue
		}

		// Row numbers are 1-indexed and count the header line.
		e.block("row", doctree.Attr("n", strconv.Itoa(n+1)))
		for j, cell := range record {
			if j > 0 {
				e.text("\t")
			}
			column := "column" + strconv.Itoa(j+1)
			if j < len(headers) && headers[j] != "" {
				column = headers[j]
			}
			e.start("cell", doctree.Attr("column", column))
			e.text(cell)
			e.end()
		}
		e.endBlock()
	}
	return e.finish()
}
