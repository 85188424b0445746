package extract

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconstructLinesOrdersTopToBottomLeftToRight(t *testing.T) {
	frags := []Fragment{
		{X: 74, Y: 700, W: 40, Text: "PO-100"},
		{X: 10, Y: 702, W: 60, Text: "PO No:"},
		{X: 10, Y: 650, W: 30, Text: "Date"},
		{X: 44, Y: 648, W: 80, Text: "12-Jan-2024"},
	}

	lines := ReconstructLines(frags, LineTolerance)

	require.Equal(t, []string{"PO No: PO-100", "Date 12-Jan-2024"}, lines)
}

func TestReconstructLinesBreaksOnGapFromPreviousFragment(t *testing.T) {
	frags := []Fragment{
		{X: 0, Y: 100, W: 10, Text: "a"},
		{X: 20, Y: 96, W: 10, Text: "b"},
		// drifting baseline: within tolerance of b
		{X: 40, Y: 92, W: 10, Text: "c"},
		{X: 0, Y: 80, W: 10, Text: "d"},
	}

	lines := ReconstructLines(frags, 5)

	require.Equal(t, []string{"a b c", "d"}, lines)
}

func TestReconstructLinesJoinsAdjacentAndDropsBlank(t *testing.T) {
	frags := []Fragment{
		{X: 0, Y: 10, W: 5, Text: "Lap"},
		{X: 5, Y: 10, W: 5, Text: "top "},
		{X: 14, Y: 10, W: 5, Text: "Pro"},
		{X: 0, Y: 40, W: 5, Text: "   "},
	}

	lines := ReconstructLines(frags, LineTolerance)

	require.Equal(t, []string{"Laptop Pro"}, lines)
}

func TestReconstructLinesMarksColumnGapsWithTabs(t *testing.T) {
	frags := []Fragment{
		{X: 10, Y: 300, W: 6, Text: "1"},
		{X: 40, Y: 300, W: 30, Text: "Laptop "},
		{X: 72, Y: 300, W: 20, Text: "Pro"},
		{X: 150, Y: 301, W: 8, Text: "5"},
		{X: 200, Y: 299, W: 30, Text: "65000"},
	}

	require.Equal(t, []string{"1\tLaptop Pro\t5\t65000"}, ReconstructLines(frags, LineTolerance))
}

func TestReconstructLinesNormalizesCompatibilityForms(t *testing.T) {
	frags := []Fragment{{X: 0, Y: 10, W: 20, Text: "ﬁle １２"}}

	require.Equal(t, []string{"file 12"}, ReconstructLines(frags, LineTolerance))
}

func TestReconstructLinesEmpty(t *testing.T) {
	require.Nil(t, ReconstructLines(nil, LineTolerance))
}

func TestExtractLinesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pdf")

	_, err := ExtractLines(path)

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	require.Equal(t, path, extErr.Path)
}

func TestReadLinesRejectsGarbage(t *testing.T) {
	data := []byte("not a pdf at all")

	_, err := ReadLines(bytes.NewReader(data), int64(len(data)))

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	require.False(t, errors.Is(err, ErrNoText))
}
