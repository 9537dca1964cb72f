package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/input"
)

// multipartMemory is the part of a multipart upload kept in memory; the
// rest spills to temporary files.
const multipartMemory = 32 << 20

var errNoFile = errors.New("no file provided")

// readUpload decodes the uploaded dataset. The file comes from the "file"
// field of a multipart form, or is the raw request body. The format is
// taken from the part or request content type, then the file name.
//
// Query parameters tune CSV decoding:
//
//	encoding    source charset (utf-8, windows-1252, latin1)
//	keep_empty  keep empty cells as "" instead of null
//	clean       strip spreadsheet artifacts from every cell
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*dataset.Raw, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodySize)

	body, contentType, filename, err := uploadSource(r)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	opts, err := s.csvOptions(r)
	if err != nil {
		return nil, badRequest(err)
	}
	if input.IsTSV(contentType, filename) {
		opts.Comma = '\t'
	}

	format, err := input.DetectFormat(contentType, filename)
	if err != nil {
		return nil, badRequest(err)
	}

	raw, err := input.Read(body, format, opts)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, badRequest(err)
	}
	return raw, nil
}

// uploadSource returns the upload body with its content type and file name.
func uploadSource(r *http.Request) (io.ReadCloser, string, string, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if r.ContentLength == 0 {
			return nil, "", "", badRequest(errNoFile)
		}
		return r.Body, r.Header.Get("Content-Type"), r.URL.Query().Get("filename"), nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", "", err
		}
		return nil, "", "", badRequest(fmt.Errorf("parse multipart form: %w", err))
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", badRequest(errNoFile)
	}
	return file, header.Header.Get("Content-Type"), header.Filename, nil
}

// csvOptions builds CSV decoding options from configuration and the
// request's query parameters.
func (s *Server) csvOptions(r *http.Request) (input.CSVOptions, error) {
	q := r.URL.Query()
	opts := input.CSVOptions{
		Encoding:   s.cfg.Ingest.Encoding,
		KeepEmpty:  s.cfg.Ingest.KeepEmpty,
		CleanCells: s.cfg.Ingest.CleanCells,
	}
	if v := q.Get("encoding"); v != "" {
		opts.Encoding = v
	}

	var err error
	if opts.KeepEmpty, err = boolParam(q.Get("keep_empty"), opts.KeepEmpty); err != nil {
		return opts, fmt.Errorf("keep_empty: %w", err)
	}
	if opts.CleanCells, err = boolParam(q.Get("clean"), opts.CleanCells); err != nil {
		return opts, fmt.Errorf("clean: %w", err)
	}
	return opts, nil
}

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// listParam splits a comma-separated query parameter, dropping blanks.
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
