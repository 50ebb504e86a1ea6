// Package csvimport parses inventory CSV uploads: UTF-8 with optional BOM,
// a mandatory header row, and header-addressed field access per data row.
package csvimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Parser reads a CSV stream row by row after validating its encoding and
// header.
type Parser struct {
	reader    *csv.Reader
	headerMap map[string]int
	headers   []string
	line      int
}

// NewParser wraps a reader, strips a UTF-8 BOM if present, validates the
// encoding, and parses the header row.
func NewParser(r io.Reader) (*Parser, error) {
	buf := bufio.NewReader(r)

	head, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("csvimport: reading file: %w", err)
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	if err := validateUTF8(buf); err != nil {
		return nil, err
	}

	p := &Parser{
		reader:    csv.NewReader(buf),
		headerMap: make(map[string]int),
	}
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1

	if err := p.parseHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("csvimport: reading file: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	// Trim a possibly split trailing rune before validating.
	end := len(content)
	for end > 0 && end > len(content)-utf8.UTFMax && !utf8.RuneStart(content[end-1]) {
		end--
	}
	if !utf8.Valid(content[:end]) {
		return ErrInvalidEncoding
	}
	return nil
}

func (p *Parser) parseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("csvimport: reading header: %w", err)
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		name := strings.ToLower(strings.TrimSpace(h))
		p.headers[i] = name
		p.headerMap[name] = i
	}
	p.line = 1
	return nil
}

// Headers returns the lowercased header names.
func (p *Parser) Headers() []string { return p.headers }

// HasHeader reports whether the named column exists.
func (p *Parser) HasHeader(name string) bool {
	_, ok := p.headerMap[name]
	return ok
}

// Row is one parsed data row.
type Row struct {
	Line   int
	fields map[string]string
}

// Get returns the trimmed value of the named column, or "".
func (r *Row) Get(header string) string {
	return r.fields[header]
}

// IsEmpty reports whether every field of the row is blank.
func (r *Row) IsEmpty() bool {
	for _, v := range r.fields {
		if v != "" {
			return false
		}
	}
	return true
}

// Read returns the next data row, or io.EOF when the file is exhausted.
func (p *Parser) Read() (*Row, error) {
	record, err := p.reader.Read()
	p.line++
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("csvimport: row %d: %w", p.line, err)
	}

	fields := make(map[string]string, len(p.headers))
	for name, idx := range p.headerMap {
		if idx < len(record) {
			fields[name] = strings.TrimSpace(record[idx])
		}
	}
	return &Row{Line: p.line, fields: fields}, nil
}
