package timeline

import (
	"fmt"
	"io"
	"math"

	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// ErrBlockOutOfOrder is returned when marks are not added in increasing block order.
var ErrBlockOutOfOrder = errors.New("block out of order")

const labelWidth = 8

type Glyphs struct {
	Absent string
	Signed string
	Missed string
	Blank  string
}

var PlainGlyphs = Glyphs{
	Absent: "~",
	Signed: ".",
	Missed: "✘",
	Blank:  " ",
}

// ColorGlyphs returns the plain glyphs coloured for a terminal. Colouring is skipped when stdout
// is not a terminal or NO_COLOR is set.
func ColorGlyphs() Glyphs {
	return Glyphs{
		Absent: color.New(color.FgYellow).Sprint(PlainGlyphs.Absent),
		Signed: color.New(color.FgGreen).Sprint(PlainGlyphs.Signed),
		Missed: color.New(color.FgRed).Sprint(PlainGlyphs.Missed),
		Blank:  PlainGlyphs.Blank,
	}
}

func (g Glyphs) mark(status entities.MarkStatus) string {
	switch status {
	case entities.StatusSigned:
		return g.Signed
	case entities.StatusMissed:
		return g.Missed
	default:
		return g.Absent
	}
}

// cursor is the next block to render. It is unset until the first mark aligns it to a row start.
type cursor struct {
	initialized bool
	next        uint64
}

// MarkPrinter renders one glyph per block in rows of width blocks. Every row starts with the
// number of its first block.
type MarkPrinter struct {
	out    io.Writer
	width  uint64
	glyphs Glyphs
	cursor cursor
	done   bool
}

func NewMarkPrinter(out io.Writer, width uint64, glyphs Glyphs) (*MarkPrinter, error) {
	if width == 0 {
		return nil, errors.New("invalid printer width 0")
	}
	return &MarkPrinter{
		out:    out,
		width:  width,
		glyphs: glyphs,
	}, nil
}

// AddMark renders the mark of the given block. Blocks between the previous mark and this one are
// rendered blank. Adding the last rendered block again is a no-op.
func (p *MarkPrinter) AddMark(blockNumber uint64, elected, signed bool) error {
	if blockNumber == math.MaxUint64 {
		return errors.Errorf("block number %d out of range", blockNumber)
	}
	if !p.cursor.initialized {
		p.cursor = cursor{initialized: true, next: blockNumber / p.width * p.width}
	}
	if blockNumber+1 < p.cursor.next {
		return errors.Wrapf(ErrBlockOutOfOrder, "cannot add mark for %d which is not after %d", blockNumber, p.cursor.next-1)
	}

	for i := p.cursor.next; i <= blockNumber; i++ {
		if i%p.width == 0 {
			err := p.printLineLabel(i)
			if err != nil {
				return err
			}
		}
		glyph := p.glyphs.Blank
		if i == blockNumber {
			glyph = p.glyphs.mark(entities.NewMarkStatus(elected, signed))
		}
		_, err := io.WriteString(p.out, glyph)
		if err != nil {
			return errors.Wrap(err, "writing mark")
		}
	}
	p.cursor.next = max(p.cursor.next, blockNumber+1)
	return nil
}

// Done terminates the current line. Only the first call writes.
func (p *MarkPrinter) Done() error {
	if p.done {
		return nil
	}
	p.done = true
	_, err := io.WriteString(p.out, "\n")
	if err != nil {
		return errors.Wrap(err, "writing final newline")
	}
	return nil
}

func (p *MarkPrinter) printLineLabel(blockNumber uint64) error {
	_, err := fmt.Fprintf(p.out, "\n%*s", labelWidth, fmt.Sprintf("%d ", blockNumber))
	if err != nil {
		return errors.Wrap(err, "writing line label")
	}
	return nil
}
