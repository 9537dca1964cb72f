package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// endOfData is the PostgreSQL end-of-copy marker; a field equal to it is
// always quoted.
const endOfData = `\.`

// BulkWriter encodes rows in a BulkFormat. Fields are quoted CSV-style
// when they contain the delimiter, a quote or a line break, are empty, or
// equal the null sentinel, so a quoted field is never read back as null.
type BulkWriter struct {
	w    *bufio.Writer
	f    BulkFormat
	line strings.Builder
}

// NewBulkWriter returns a writer encoding into w.
func NewBulkWriter(w io.Writer, f BulkFormat) *BulkWriter {
	return &BulkWriter{w: bufio.NewWriter(w), f: f}
}

// WriteFields writes one row. A nil field is null.
func (bw *BulkWriter) WriteFields(fields []*string) error {
	bw.line.Reset()
	for i, field := range fields {
		if i > 0 {
			bw.line.WriteRune(bw.f.Delimiter)
		}
		switch {
		case field == nil:
			bw.line.WriteString(bw.f.Null)
		case bw.needsQuote(*field):
			bw.line.WriteByte('"')
			bw.line.WriteString(strings.ReplaceAll(*field, `"`, `""`))
			bw.line.WriteByte('"')
		default:
			bw.line.WriteString(*field)
		}
	}
	bw.line.WriteByte('\n')
	_, err := bw.w.WriteString(bw.line.String())
	return err
}

// Flush writes any buffered data to the underlying writer.
func (bw *BulkWriter) Flush() error { return bw.w.Flush() }

func (bw *BulkWriter) needsQuote(s string) bool {
	return s == "" ||
		s == bw.f.Null ||
		s == endOfData ||
		strings.ContainsRune(s, bw.f.Delimiter) ||
		strings.ContainsAny(s, "\"\r\n")
}

// EncodeDataset writes every row of ds to w in declared column order,
// without a header.
func EncodeDataset(w io.Writer, ds *dataset.Dataset, f BulkFormat) error {
	names := ds.Columns()
	cols := make([]*dataset.Column, len(names))
	for i, name := range names {
		cols[i], _ = ds.Typed(name)
	}

	bw := NewBulkWriter(w, f)
	fields := make([]*string, len(cols))
	for row := 0; row < ds.Len(); row++ {
		for i, col := range cols {
			text, null, err := encodeText(col.Kind, col.Values[row])
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", row, col.Name, err)
			}
			if null {
				fields[i] = nil
				continue
			}
			fields[i] = &text
		}
		if err := bw.WriteFields(fields); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var errUnterminatedQuote = errors.New("unterminated quoted field")

// BulkReader decodes rows written by a BulkWriter with the same format.
type BulkReader struct {
	r *bufio.Reader
	f BulkFormat
}

// NewBulkReader returns a reader decoding r.
func NewBulkReader(r io.Reader, f BulkFormat) *BulkReader {
	return &BulkReader{r: bufio.NewReader(r), f: f}
}

// Read returns the next row. Null fields are nil; every other field is a
// string. It returns io.EOF when no rows remain.
func (br *BulkReader) Read() ([]any, error) {
	var (
		fields   []any
		buf      strings.Builder
		quoted   bool
		inQuotes bool
		started  bool
	)
	field := func() any {
		s := buf.String()
		buf.Reset()
		wasQuoted := quoted
		quoted = false
		if !wasQuoted && s == br.f.Null {
			return nil
		}
		return s
	}

	for {
		c, _, err := br.r.ReadRune()
		if errors.Is(err, io.EOF) {
			if inQuotes {
				return nil, errUnterminatedQuote
			}
			if !started {
				return nil, io.EOF
			}
			return append(fields, field()), nil
		}
		if err != nil {
			return nil, err
		}
		started = true

		switch {
		case inQuotes:
			if c != '"' {
				buf.WriteRune(c)
				continue
			}
			next, _, err := br.r.ReadRune()
			switch {
			case err == nil && next == '"':
				buf.WriteRune('"')
			case err == nil:
				_ = br.r.UnreadRune()
				inQuotes = false
			case errors.Is(err, io.EOF):
				inQuotes = false
			default:
				return nil, err
			}
		case c == '"' && !quoted && buf.Len() == 0:
			inQuotes, quoted = true, true
		case c == br.f.Delimiter:
			fields = append(fields, field())
		case c == '\n':
			return append(fields, field()), nil
		case c == '\r':
			if next, _, err := br.r.ReadRune(); err == nil && next != '\n' {
				_ = br.r.UnreadRune()
				buf.WriteRune(c)
				continue
			}
			return append(fields, field()), nil
		default:
			buf.WriteRune(c)
		}
	}
}
