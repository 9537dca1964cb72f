// Package input decodes uploaded files into raw tabular data for
// validation. It only shapes the data: every CSV value stays a string
// and JSON numbers become int64 or float64. Typing is the validator's job.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file")

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	// Encoding names the source charset: "utf-8" (default),
	// "windows-1252" or "latin1". A byte order mark always wins.
	Encoding string

	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// KeepEmpty keeps empty cells as "" instead of null.
	KeepEmpty bool

	// CleanCells strips spreadsheet artifacts (="..." wrappers, stray
	// quotes) from every cell, not just the header.
	CleanCells bool
}

// ReadCSV reads a CSV document whose first non-blank row is the header.
// Blank rows are skipped, short rows are padded with nulls and empty
// trailing cells beyond the header are dropped.
func ReadCSV(r io.Reader, opts CSVOptions) (*dataset.Raw, error) {
	dec, err := decoderFor(opts.Encoding)
	if err != nil {
		return nil, err
	}
	tr := transform.NewReader(r, transform.Chain(unicode.BOMOverride(dec.NewDecoder()), runes.ReplaceIllFormed()))

	cr := csv.NewReader(tr)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	var header []string
	var records [][]any
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CSV: %w", err)
		}
		if isEmptyRow(row) {
			continue
		}

		if header == nil {
			header = make([]string, len(row))
			for i, h := range row {
				header[i] = CleanCell(h)
			}
			header = trimTrailingEmpty(header)
			continue
		}

		if len(row) > len(header) {
			if !isEmptyRow(row[len(header):]) {
				return nil, fmt.Errorf("row %d: expected at most %d columns, got %d", len(records), len(header), len(row))
			}
			row = row[:len(header)]
		}

		rec := make([]any, len(row))
		for i, cell := range row {
			if opts.CleanCells {
				cell = CleanCell(cell)
			}
			if cell == "" && !opts.KeepEmpty {
				continue
			}
			rec[i] = cell
		}
		records = append(records, rec)
	}

	if header == nil {
		return nil, ErrEmptyFile
	}
	return dataset.NewRaw(header, records)
}

// decoderFor resolves a charset name.
func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimTrailingEmpty(header []string) []string {
	n := len(header)
	for n > 0 && header[n-1] == "" {
		n--
	}
	return header[:n]
}

// CleanCell removes spreadsheet export artifacts from a cell: surrounding
// whitespace, ="..." formula wrappers, a leading '=' and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
