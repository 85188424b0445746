// Package sheet reads the first worksheet of an xlsx workbook as a header
// plus a lazy stream of data rows.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MissingSheetError is returned when the workbook contains no worksheet.
type MissingSheetError struct {
	Source string
}

func (e *MissingSheetError) Error() string {
	return fmt.Sprintf("sheet: %s has no worksheets", e.Source)
}

// MissingColumnsError lists required headers absent from the header row.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("sheet: missing required columns: %s", strings.Join(e.Columns, ", "))
}

// Header maps normalized column names to positions.
type Header struct {
	names []string
	index map[string]int
}

func newHeader(cells []string) Header {
	h := Header{names: make([]string, len(cells)), index: make(map[string]int, len(cells))}
	for i, c := range cells {
		name := strings.TrimSpace(c)
		h.names[i] = name
		key := strings.ToLower(name)
		if key == "" {
			continue
		}
		if _, dup := h.index[key]; !dup {
			h.index[key] = i
		}
	}
	return h
}

// Index returns the column of name, matched case-insensitively.
func (h Header) Index(name string) (int, bool) {
	i, ok := h.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// First returns the column of the first alias present.
func (h Header) First(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := h.Index(a); ok {
			return i, true
		}
	}
	return 0, false
}

// Require reports every name that is not present.
func (h Header) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := h.Index(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// Names returns the trimmed header cells in their original case.
func (h Header) Names() []string {
	return append([]string(nil), h.names...)
}

// Row is one non-blank data row.
type Row struct {
	Number int
	cells  []string
}

// Cell returns the trimmed display text at column i, or "".
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

// Value returns the cell under the named column, or "".
func (r Row) Value(h Header, name string) string {
	i, ok := h.Index(name)
	if !ok {
		return ""
	}
	return r.Cell(i)
}

// Len is the number of cells read for the row.
func (r Row) Len() int { return len(r.cells) }

// Reader iterates the rows of a workbook's first sheet.
type Reader struct {
	file   *excelize.File
	rows   *excelize.Rows
	header Header
	row    Row
	line   int
	err    error
}

// Open reads the workbook at path.
func Open(path string) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheet: open %s: %w", path, err)
	}
	return newReader(f, path)
}

// OpenReader reads a workbook from r.
func OpenReader(r io.Reader) (*Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: open workbook: %w", err)
	}
	return newReader(f, "workbook")
}

func newReader(f *excelize.File, source string) (*Reader, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, &MissingSheetError{Source: source}
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sheet: read %s: %w", sheets[0], err)
	}
	rd := &Reader{file: f, rows: rows}
	for rows.Next() {
		rd.line++
		cells, err := rows.Columns()
		if err != nil {
			_ = rd.Close()
			return nil, fmt.Errorf("sheet: read header: %w", err)
		}
		if isBlank(cells) {
			continue
		}
		rd.header = newHeader(cells)
		return rd, nil
	}
	if err := rows.Error(); err != nil {
		_ = rd.Close()
		return nil, fmt.Errorf("sheet: read header: %w", err)
	}
	return rd, nil
}

// Header returns the parsed header row.
func (r *Reader) Header() Header { return r.header }

// Next advances to the next non-blank row.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.rows.Next() {
		r.line++
		cells, err := r.rows.Columns()
		if err != nil {
			r.err = fmt.Errorf("sheet: row %d: %w", r.line, err)
			return false
		}
		if isBlank(cells) {
			continue
		}
		r.row = Row{Number: r.line, cells: cells}
		return true
	}
	if err := r.rows.Error(); err != nil {
		r.err = err
	}
	return false
}

// Row returns the row loaded by the last successful Next.
func (r *Reader) Row() Row { return r.row }

// Err returns the first iteration error.
func (r *Reader) Err() error { return r.err }

// Close releases the workbook.
func (r *Reader) Close() error {
	var errs []error
	if r.rows != nil {
		errs = append(errs, r.rows.Close())
	}
	if r.file != nil {
		errs = append(errs, r.file.Close())
	}
	return errors.Join(errs...)
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
