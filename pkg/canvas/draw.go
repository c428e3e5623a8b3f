package canvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LineCells returns the cells of a line from (x1, y1) to (x2, y2), both ends
// included, traced with Bresenham's algorithm. Mostly horizontal lines use
// '─', mostly vertical ones '│', and any line with both a horizontal and a
// vertical component uses '╲' or '╱' by direction.
func LineCells(x1, y1, x2, y2 int) []Placed {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx, sy := 1, 1

	if x1 >= x2 {
		sx = -1
	}

	if y1 >= y2 {
		sy = -1
	}

	ch := '─'
	if -dy > dx {
		ch = '│'
	}

	if dx != 0 && dy != 0 {
		if sx == sy {
			ch = '╲'
		} else {
			ch = '╱'
		}
	}

	var out []Placed

	x, y, e := x1, y1, dx+dy

	for {
		out = append(out, At(x, y, Char(ch)))

		if x == x2 && y == y2 {
			return out
		}

		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}

		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// RectCells returns a box spanning the two corners in any order. The border
// uses ┌ ┐ └ ┘ ─ │. When filled, interior cells get background colour 1.
func RectCells(x1, y1, x2, y2 int, filled bool) []Placed {
	minX, maxX := min(x1, x2), max(x1, x2)
	minY, maxY := min(y1, y2), max(y1, y2)

	var out []Placed

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			var ch rune

			switch {
			case x == minX && y == minY:
				ch = '┌'
			case x == maxX && y == minY:
				ch = '┐'
			case x == minX && y == maxY:
				ch = '└'
			case x == maxX && y == maxY:
				ch = '┘'
			case y == minY || y == maxY:
				ch = '─'
			case x == minX || x == maxX:
				ch = '│'
			}

			switch {
			case ch != 0:
				out = append(out, At(x, y, Char(ch)))
			case filled:
				out = append(out, At(x, y, Cell{Ch: ' ', Bg: Palette(1)}))
			}
		}
	}

	return out
}

// TextCells lays text out from (x, y). A newline returns to column x on the
// next row.
func TextCells(x, y int, text string) []Placed {
	var out []Placed

	col, row := x, y

	for _, r := range text {
		if r == '\n' {
			col, row = x, row+1

			continue
		}

		out = append(out, At(col, row, Char(r)))
		col++
	}

	return out
}

// Draw journals one SetCell per cell through LogAndApply. On error the cells
// already written stay written.
func (c *Canvas) Draw(ctx context.Context, cells []Placed) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return err
	}

	for _, p := range cells {
		err = c.logAndApply(ctx, SetCell{X: p.X, Y: p.Y, New: p.Cell})
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteText draws text starting at (x, y); see [TextCells].
func (c *Canvas) WriteText(ctx context.Context, x, y int, text string) error {
	return c.Draw(ctx, TextCells(x, y, text))
}

// MaxRegionCells bounds the area a single [Canvas.Region] call may read.
const MaxRegionCells = 1 << 20

// Region returns h rows of w cells starting at (x, y). Areas above
// [MaxRegionCells] fail with [ErrRegionTooLarge] before any chunk is read.
func (c *Canvas) Region(ctx context.Context, x, y, w, h int) ([][]Cell, error) {
	if w < 0 || h < 0 {
		return nil, errors.New("region: negative size")
	}

	if w > 0 && h > MaxRegionCells/w {
		return nil, fmt.Errorf("region: %w: %dx%d exceeds %d cells", ErrRegionTooLarge, w, h, MaxRegionCells)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return nil, err
	}

	rows := make([][]Cell, h)

	for dy := range h {
		row := make([]Cell, w)

		for dx := range w {
			row[dx], err = c.cell(ctx, x+dx, y+dy)
			if err != nil {
				return nil, err
			}
		}

		rows[dy] = row
	}

	return rows, nil
}

// Lines renders rows as text, one string per row, with trailing spaces
// trimmed.
func Lines(rows [][]Cell) []string {
	out := make([]string, len(rows))

	var sb strings.Builder

	for i, row := range rows {
		sb.Reset()

		for _, cell := range row {
			sb.WriteRune(cell.normalize().Ch)
		}

		out[i] = strings.TrimRight(sb.String(), " ")
	}

	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
