// Package printer renders decoded batches for the console.
package printer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/arrowbus/pkg/batch"
)

// Format names an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatNone  Format = "none"
)

// Options controls rendering
type Options struct {
	// MaxRows caps rendered rows per batch; 0 renders all
	MaxRows int
}

// Printer writes batches to an output
type Printer struct {
	w      io.Writer
	format Format
	opts   Options
}

// New creates a printer for format
func New(w io.Writer, format Format, opts Options) (*Printer, error) {
	switch format {
	case FormatTable, FormatJSON, FormatNone:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return &Printer{w: w, format: format, opts: opts}, nil
}

// Print renders batches in the printer's format
func (p *Printer) Print(batches ...*batch.Batch) error {
	switch p.format {
	case FormatTable:
		return Table(p.w, p.opts, batches...)
	case FormatJSON:
		return JSON(p.w, p.opts, batches...)
	default:
		return nil
	}
}

// Table renders batches as one bordered table with the column names as the
// header row. All batches must share the first batch's field names.
func Table(w io.Writer, opts Options, batches ...*batch.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	schema := batches[0].Schema()
	names := make([]string, schema.NumFields())
	widths := make([]int, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
		widths[i] = len(f.Name)
	}

	var rows [][]string
	hidden := 0
	for _, b := range batches {
		if b.NumCols() != len(names) {
			return fmt.Errorf("batch has %d columns, table has %d", b.NumCols(), len(names))
		}
		n := shown(b.NumRows(), opts.MaxRows)
		hidden += b.NumRows() - n
		for r := 0; r < n; r++ {
			row := make([]string, len(names))
			for c := range names {
				row[c] = b.Column(c).ValueStr(r)
				if len(row[c]) > widths[c] {
					widths[c] = len(row[c])
				}
			}
			rows = append(rows, row)
		}
	}

	bw := bufio.NewWriter(w)
	border := borderLine(widths)
	bw.WriteString(border)
	writeRow(bw, names, widths)
	bw.WriteString(border)
	for _, row := range rows {
		writeRow(bw, row, widths)
	}
	bw.WriteString(border)
	if hidden > 0 {
		fmt.Fprintf(bw, "... %d more rows\n", hidden)
	}
	return bw.Flush()
}

func borderLine(widths []int) string {
	var sb strings.Builder
	sb.WriteByte('+')
	for _, w := range widths {
		sb.WriteString(strings.Repeat("-", w+2))
		sb.WriteByte('+')
	}
	sb.WriteByte('\n')
	return sb.String()
}

func writeRow(bw *bufio.Writer, cells []string, widths []int) {
	bw.WriteByte('|')
	for i, cell := range cells {
		fmt.Fprintf(bw, " %-*s |", widths[i], cell)
	}
	bw.WriteByte('\n')
}

// JSON writes one JSON object per row, keys in schema order
func JSON(w io.Writer, opts Options, batches ...*batch.Batch) error {
	bw := bufio.NewWriter(w)
	for _, b := range batches {
		keys := make([][]byte, b.NumCols())
		for i, f := range b.Schema().Fields() {
			k, err := json.Marshal(f.Name)
			if err != nil {
				return err
			}
			keys[i] = k
		}

		n := shown(b.NumRows(), opts.MaxRows)
		for r := 0; r < n; r++ {
			bw.WriteByte('{')
			for c := range keys {
				if c > 0 {
					bw.WriteByte(',')
				}
				v, err := json.Marshal(b.Column(c).GetOneForMarshal(r))
				if err != nil {
					return fmt.Errorf("marshal row %d column %d: %w", r, c, err)
				}
				bw.Write(keys[c])
				bw.WriteByte(':')
				bw.Write(v)
			}
			bw.WriteString("}\n")
		}
	}
	return bw.Flush()
}

func shown(rows, limit int) int {
	if limit > 0 && rows > limit {
		return limit
	}
	return rows
}
