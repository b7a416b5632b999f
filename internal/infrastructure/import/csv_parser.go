package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Parser reads one feed file: UTF-8 CSV with an optional BOM, a header row,
// then data rows. Header names are normalized on parse so the same feed maps
// cleanly whether a column arrives as "Order Number", "ORDER_NUMBER" or
// "order-number".
type Parser struct {
	delimiter rune
	headers   []string
	headerIdx map[string]int
	line      int
	reader    *csv.Reader
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithDelimiter sets the field delimiter, comma by default
func WithDelimiter(d rune) ParserOption {
	return func(p *Parser) {
		p.delimiter = d
	}
}

// NewParser wraps a reader, strips a UTF-8 BOM when present and rejects
// files that are empty or not valid UTF-8.
func NewParser(r io.Reader, opts ...ParserOption) (*Parser, error) {
	p := &Parser{
		delimiter: ',',
		headerIdx: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	buf := bufio.NewReader(r)
	bom, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = buf.Discard(3)
	}
	if err := checkUTF8(buf); err != nil {
		return nil, err
	}

	p.reader = csv.NewReader(buf)
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1
	return p, nil
}

// ParseBytes builds a parser over an uploaded file body
func ParseBytes(data []byte, opts ...ParserOption) (*Parser, error) {
	return NewParser(bytes.NewReader(data), opts...)
}

// checkUTF8 validates the leading window of the file
func checkUTF8(r *bufio.Reader) error {
	content, err := r.Peek(4096)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	if !utf8.Valid(trimPartialRune(content)) {
		return ErrInvalidEncoding
	}
	return nil
}

// trimPartialRune drops a multi-byte rune the peek window may have cut in
// half, so the window boundary never flags a valid file.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < 3 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// NormalizeHeader maps a raw column name to its canonical form: trimmed,
// lower case, with spaces and dashes turned into underscores.
func NormalizeHeader(h string) string {
	name := strings.ToLower(strings.TrimSpace(h))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, name)
}

// ParseHeader reads the header row and builds the column index. Duplicate
// column names keep their first occurrence.
func (p *Parser) ParseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	p.line = 1
	p.headers = make([]string, len(record))
	for i, h := range record {
		name := NormalizeHeader(h)
		p.headers[i] = name
		if name == "" {
			continue
		}
		if _, dup := p.headerIdx[name]; !dup {
			p.headerIdx[name] = i
		}
	}
	if len(p.headerIdx) == 0 {
		return ErrMissingHeader
	}
	return nil
}

// Headers returns the normalized header names in column order
func (p *Parser) Headers() []string {
	return p.headers
}

// HasHeader reports whether a normalized column name is present
func (p *Parser) HasHeader(name string) bool {
	_, ok := p.headerIdx[name]
	return ok
}

// MissingHeaders returns the required column names absent from the file
func (p *Parser) MissingHeaders(required []string) []string {
	var missing []string
	for _, name := range required {
		if !p.HasHeader(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Row is one parsed data row keyed by normalized column name
type Row struct {
	Line int
	Data map[string]string
}

// Get returns the trimmed value of a column, empty when absent
func (r *Row) Get(name string) string {
	return r.Data[name]
}

// IsEmpty reports whether every field of the row is blank
func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// ReadRow reads the next data row. io.EOF marks the end of the file.
func (p *Parser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.line++
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", p.line, err)
	}

	row := &Row{
		Line: p.line,
		Data: make(map[string]string, len(p.headerIdx)),
	}
	for name, i := range p.headerIdx {
		if i < len(record) {
			row.Data[name] = strings.TrimSpace(record[i])
		} else {
			row.Data[name] = ""
		}
	}
	return row, nil
}

// ReadAll reads every remaining data row, skipping blank lines. Rows the CSV
// layer cannot parse come back as RowErrors alongside the rows that did
// parse, so one broken line does not sink the file. maxRows caps the
// accepted row count when positive.
func (p *Parser) ReadAll(maxRows int) ([]*Row, []RowError, error) {
	var rows []*Row
	var malformed []RowError
	for {
		row, err := p.ReadRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed = append(malformed, NewRowError(p.line, "", ErrCodeMalformedRow, err.Error()))
			continue
		}
		if row.IsEmpty() {
			continue
		}
		if maxRows > 0 && len(rows) >= maxRows {
			return nil, nil, ErrTooManyRows
		}
		rows = append(rows, row)
	}
	return rows, malformed, nil
}

// Line returns the file line of the most recently read row
func (p *Parser) Line() int {
	return p.line
}
