package canvas

import (
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Color is an optional palette index. The zero value means "no colour".
type Color struct {
	Index int
	Set   bool
}

// Palette returns the colour with palette index i.
func Palette(i int) Color {
	return Color{Index: i, Set: true}
}

func (c Color) String() string {
	if !c.Set {
		return "-"
	}

	return fmt.Sprintf("%d", c.Index)
}

// Cell is one grid position. Cells are values; compare them with ==.
//
// A zero Ch is treated as a space, so Cell{} and [Blank] describe the same
// empty cell.
type Cell struct {
	Ch    rune
	Fg    Color
	Bg    Color
	Owner string
}

// Blank is the canonical empty cell. It is never stored in a chunk.
var Blank = Cell{Ch: ' '}

// Char returns a cell holding ch with no colours and no owner.
func Char(ch rune) Cell {
	return Cell{Ch: ch}
}

func (c Cell) normalize() Cell {
	if c.Ch == 0 {
		c.Ch = ' '
	}

	return c
}

// IsBlank reports whether c equals the empty cell.
func (c Cell) IsBlank() bool {
	return c.normalize() == Blank
}

func (c Cell) String() string {
	c = c.normalize()

	return fmt.Sprintf("%q fg=%s bg=%s owner=%q", c.Ch, c.Fg, c.Bg, c.Owner)
}

// EncodeMsgpack writes the cell as [ch, fg, bg, owner] with nil for unset
// attributes.
func (c Cell) EncodeMsgpack(enc *msgpack.Encoder) error {
	c = c.normalize()

	err := enc.EncodeArrayLen(4)
	if err != nil {
		return err
	}

	err = enc.EncodeString(string(c.Ch))
	if err != nil {
		return err
	}

	for _, color := range []Color{c.Fg, c.Bg} {
		if color.Set {
			err = enc.EncodeInt(int64(color.Index))
		} else {
			err = enc.EncodeNil()
		}

		if err != nil {
			return err
		}
	}

	if c.Owner == "" {
		return enc.EncodeNil()
	}

	return enc.EncodeString(c.Owner)
}

// DecodeMsgpack reads the array form written by EncodeMsgpack. Shorter
// arrays leave the missing trailing attributes unset.
func (c *Cell) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}

	if n < 1 || n > 4 {
		return fmt.Errorf("cell: array length %d, want 1..4", n)
	}

	var out Cell

	s, err := decodeOptString(dec)
	if err != nil {
		return fmt.Errorf("cell ch: %w", err)
	}

	out.Ch, _ = utf8.DecodeRuneInString(s)
	if s == "" {
		out.Ch = ' '
	}

	if n > 1 {
		out.Fg, err = decodeOptColor(dec)
		if err != nil {
			return fmt.Errorf("cell fg: %w", err)
		}
	}

	if n > 2 {
		out.Bg, err = decodeOptColor(dec)
		if err != nil {
			return fmt.Errorf("cell bg: %w", err)
		}
	}

	if n > 3 {
		out.Owner, err = decodeOptString(dec)
		if err != nil {
			return fmt.Errorf("cell owner: %w", err)
		}
	}

	*c = out

	return nil
}

func decodeOptColor(dec *msgpack.Decoder) (Color, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return Color{}, err
	}

	if code == msgpcode.Nil {
		return Color{}, dec.DecodeNil()
	}

	i, err := dec.DecodeInt()
	if err != nil {
		return Color{}, err
	}

	return Palette(i), nil
}

func decodeOptString(dec *msgpack.Decoder) (string, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return "", err
	}

	if code == msgpcode.Nil {
		return "", dec.DecodeNil()
	}

	return dec.DecodeString()
}

// Placed is a cell at an absolute grid coordinate.
type Placed struct {
	X    int
	Y    int
	Cell Cell
}

// At builds a Placed value.
func At(x, y int, cell Cell) Placed {
	return Placed{X: x, Y: y, Cell: cell}
}

// EncodeMsgpack writes [x, y, cell].
func (p Placed) EncodeMsgpack(enc *msgpack.Encoder) error {
	err := enc.EncodeArrayLen(3)
	if err != nil {
		return err
	}

	err = enc.EncodeInt(int64(p.X))
	if err != nil {
		return err
	}

	err = enc.EncodeInt(int64(p.Y))
	if err != nil {
		return err
	}

	return p.Cell.EncodeMsgpack(enc)
}

func (p *Placed) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}

	if n != 3 {
		return fmt.Errorf("placed cell: array length %d, want 3", n)
	}

	var out Placed

	out.X, err = dec.DecodeInt()
	if err != nil {
		return err
	}

	out.Y, err = dec.DecodeInt()
	if err != nil {
		return err
	}

	err = out.Cell.DecodeMsgpack(dec)
	if err != nil {
		return err
	}

	*p = out

	return nil
}
