package timeline

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mark struct {
	block   uint64
	elected bool
	signed  bool
}

func render(t *testing.T, width uint64, marks []mark) string {
	var out bytes.Buffer
	printer, err := NewMarkPrinter(&out, width, PlainGlyphs)
	require.NoError(t, err)
	for _, m := range marks {
		require.NoError(t, printer.AddMark(m.block, m.elected, m.signed))
	}
	require.NoError(t, printer.Done())
	return out.String()
}

func TestNewMarkPrinter_givenZeroWidth_thenError(t *testing.T) {
	_, err := NewMarkPrinter(&bytes.Buffer{}, 0, PlainGlyphs)
	require.Error(t, err)
}

func TestMarkPrinter_glyphPerStatus(t *testing.T) {
	got := render(t, 40, []mark{
		{block: 120, elected: true, signed: true},
		{block: 121, elected: true, signed: false},
		{block: 122, elected: false},
	})

	assert.Equal(t, "\n    120 .✘~\n", got)
}

func TestMarkPrinter_firstRowAlignsToWidthBoundary(t *testing.T) {
	got := render(t, 40, []mark{
		{block: 118, elected: true, signed: true},
		{block: 119, elected: true, signed: true},
		{block: 120, elected: true, signed: true},
		{block: 121, elected: true, signed: false},
		{block: 122, elected: false},
	})

	expected := "\n     80 " + strings.Repeat(" ", 38) + ".." +
		"\n    120 .✘~" +
		"\n"
	assert.Equal(t, expected, got)
}

func TestMarkPrinter_rowBreakAtEveryMultipleOfWidth(t *testing.T) {
	var marks []mark
	for block := uint64(3); block <= 12; block++ {
		marks = append(marks, mark{block: block, elected: true, signed: true})
	}

	got := render(t, 5, marks)

	expected := "\n      0    .." +
		"\n      5 ....." +
		"\n     10 ..." +
		"\n"
	assert.Equal(t, expected, got)
	assert.Equal(t, 10, strings.Count(got, "."))
}

func TestMarkPrinter_gapsAreRenderedBlank(t *testing.T) {
	got := render(t, 10, []mark{
		{block: 3, elected: true, signed: true},
		{block: 6, elected: true, signed: false},
		{block: 11, elected: false},
	})

	expected := "\n      0    .  ✘   " +
		"\n     10  ~" +
		"\n"
	assert.Equal(t, expected, got)
}

func TestMarkPrinter_AddMark_givenEarlierBlock_thenUsageError(t *testing.T) {
	var out bytes.Buffer
	printer, err := NewMarkPrinter(&out, 5, PlainGlyphs)
	require.NoError(t, err)

	require.NoError(t, printer.AddMark(10, true, true))

	err = printer.AddMark(8, true, true)
	require.ErrorIs(t, err, ErrBlockOutOfOrder)

	err = printer.AddMark(9, true, true)
	require.ErrorIs(t, err, ErrBlockOutOfOrder)

	rendered := out.String()
	// repeating the last block renders nothing
	require.NoError(t, printer.AddMark(10, false, false))
	assert.Equal(t, rendered, out.String())

	require.NoError(t, printer.AddMark(11, false, false))
	assert.Equal(t, "\n     10 .~", out.String())
}

func TestMarkPrinter_AddMark_givenBlockAboveMaxInt64_thenRenderInOrder(t *testing.T) {
	first := uint64(math.MaxInt64) + 1 // 9223372036854775808

	got := render(t, 10, []mark{
		{block: first, elected: true, signed: true},
		{block: first + 1, elected: true, signed: false},
		{block: first + 2, elected: false},
	})

	// labels wider than the label column are not truncated
	assert.Equal(t, "\n9223372036854775800 "+strings.Repeat(" ", 8)+".✘\n9223372036854775810 ~\n", got)
}

func TestMarkPrinter_AddMark_givenMaxBlockNumber_thenError(t *testing.T) {
	printer, err := NewMarkPrinter(&bytes.Buffer{}, 10, PlainGlyphs)
	require.NoError(t, err)

	require.Error(t, printer.AddMark(math.MaxUint64, true, true))
}

func TestMarkPrinter_Done_writesSingleNewline(t *testing.T) {
	var completed bytes.Buffer
	printer, err := NewMarkPrinter(&completed, 40, PlainGlyphs)
	require.NoError(t, err)
	require.NoError(t, printer.AddMark(40, true, true))
	require.NoError(t, printer.Done())
	require.NoError(t, printer.Done())
	assert.Equal(t, "\n     40 .\n", completed.String())

	var aborted bytes.Buffer
	printer, err = NewMarkPrinter(&aborted, 40, PlainGlyphs)
	require.NoError(t, err)
	require.NoError(t, printer.AddMark(41, true, true))
	require.Error(t, printer.AddMark(1, true, true))
	require.NoError(t, printer.Done())
	require.NoError(t, printer.Done())
	assert.Equal(t, "\n     40  .\n", aborted.String())

	var empty bytes.Buffer
	printer, err = NewMarkPrinter(&empty, 40, PlainGlyphs)
	require.NoError(t, err)
	require.NoError(t, printer.Done())
	assert.Equal(t, "\n", empty.String())
}

func TestColorGlyphs_keepPlainSymbols(t *testing.T) {
	glyphs := ColorGlyphs()
	assert.Contains(t, glyphs.Signed, PlainGlyphs.Signed)
	assert.Contains(t, glyphs.Missed, PlainGlyphs.Missed)
	assert.Contains(t, glyphs.Absent, PlainGlyphs.Absent)
	assert.Equal(t, " ", glyphs.Blank)
}
