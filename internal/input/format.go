package input

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// Format is a supported upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DetectFormat picks a format from a media type, falling back to the
// file extension. Unknown types are an error.
func DetectFormat(contentType, filename string) (Format, error) {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			switch mt {
			case "text/csv", "application/csv", "text/tab-separated-values":
				return FormatCSV, nil
			case "application/json", "text/json":
				return FormatJSON, nil
			}
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	if contentType == "" && filename == "" {
		return "", fmt.Errorf("cannot detect format: no content type or file name")
	}
	return "", fmt.Errorf("unsupported format (content type %q, file %q)", contentType, filename)
}

// Read decodes r in format f. opts apply to CSV only.
func Read(r io.Reader, f Format, opts CSVOptions) (*dataset.Raw, error) {
	switch f {
	case FormatCSV:
		return ReadCSV(r, opts)
	case FormatJSON:
		return ReadJSON(r)
	}
	return nil, fmt.Errorf("unsupported format %q", f)
}

// IsTSV reports whether a media type or file name denotes tab-separated
// values.
func IsTSV(contentType, filename string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "text/tab-separated-values" {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".tsv")
}
