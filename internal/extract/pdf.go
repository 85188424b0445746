// Package extract turns text PDFs into ordered plain-text lines.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

const (
	// LineTolerance is the vertical distance under which fragments share a line.
	LineTolerance = 5.0
	// spaceGap is the horizontal gap that separates two words.
	spaceGap = 1.5
	// columnGap is the horizontal gap that separates two table cells.
	columnGap = 12.0
)

// ErrNoText reports a document whose pages carry no extractable text.
var ErrNoText = errors.New("extract: document contains no extractable text")

// ExtractionError wraps failures opening or decoding a PDF.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("extract pdf: %v", e.Err)
	}
	return fmt.Sprintf("extract pdf %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Fragment is one positioned run of text on a page.
type Fragment struct {
	X    float64
	Y    float64
	W    float64
	Text string
}

// ExtractLines opens path and returns its text lines in reading order.
func ExtractLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	lines, err := ReadLines(f, info.Size())
	if err != nil {
		var extErr *ExtractionError
		if errors.As(err, &extErr) {
			extErr.Path = path
		}
		return nil, err
	}
	return lines, nil
}

// ReadLines decodes a PDF from r and returns its text lines page by page.
func ReadLines(r io.ReaderAt, size int64) (lines []string, err error) {
	// the pdf package panics on some malformed xref tables
	defer func() {
		if rec := recover(); rec != nil {
			lines = nil
			err = &ExtractionError{Err: fmt.Errorf("malformed document: %v", rec)}
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines = append(lines, ReconstructLines(pageFragments(page), LineTolerance)...)
	}
	if len(lines) == 0 {
		return nil, &ExtractionError{Err: ErrNoText}
	}
	return lines, nil
}

func pageFragments(page pdf.Page) []Fragment {
	texts := page.Content().Text
	frags := make([]Fragment, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		frags = append(frags, Fragment{X: t.X, Y: t.Y, W: t.W, Text: t.S})
	}
	return frags
}

// ReconstructLines orders fragments top to bottom, left to right and joins
// them into trimmed, non-blank lines. A new line starts when the vertical
// position moves more than tolerance from the previous fragment. Word gaps
// become a space and column gaps a tab.
func ReconstructLines(frags []Fragment, tolerance float64) []string {
	if len(frags) == 0 {
		return nil
	}
	sorted := append([]Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y > sorted[j].Y
	})

	var groups [][]Fragment
	for i, f := range sorted {
		if i == 0 || math.Abs(sorted[i-1].Y-f.Y) > tolerance {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], f)
	}

	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].X < g[j].X })
		line := strings.TrimSpace(joinFragments(g))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func joinFragments(g []Fragment) string {
	var buf []byte
	for i, f := range g {
		text := norm.NFKC.String(f.Text)
		if i > 0 && f.W > 0 {
			prev := g[i-1]
			gap := f.X - (prev.X + prev.W)
			switch {
			case gap > columnGap:
				buf = append(bytes.TrimRight(buf, " "), '\t')
				text = strings.TrimLeft(text, " ")
			case gap > spaceGap && !bytes.HasSuffix(buf, []byte(" ")) && !strings.HasPrefix(text, " "):
				buf = append(buf, ' ')
			}
		}
		buf = append(buf, text...)
	}
	return string(buf)
}
