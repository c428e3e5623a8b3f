package canvas

import (
	"cmp"
	"slices"
)

// ChunkSize is the side length of a chunk in cells.
const ChunkSize = 128

// ChunkCoord identifies a chunk by floor(x/ChunkSize), floor(y/ChunkSize).
type ChunkCoord struct {
	CX int
	CY int
}

// ChunkOf returns the chunk containing world coordinate (x, y) and the local
// offset inside it. Negative coordinates round towards negative infinity, so
// x = -1 lands in chunk -1 at local offset 127.
func ChunkOf(x, y int) (ChunkCoord, int, int) {
	cx, lx := floorDivMod(x, ChunkSize)
	cy, ly := floorDivMod(y, ChunkSize)

	return ChunkCoord{CX: cx, CY: cy}, lx, ly
}

func floorDivMod(a, b int) (int, int) {
	q, r := a/b, a%b
	if r < 0 {
		q--
		r += b
	}

	return q, r
}

type local struct {
	lx, ly int
}

// Chunk holds the non-blank cells of one ChunkSize x ChunkSize tile.
//
// Blank cells are never stored: writing [Blank] removes the entry. The dirty
// flag is raised only when a write actually changes the stored content.
type Chunk struct {
	coord ChunkCoord
	cells map[local]Cell
	dirty bool
}

// NewChunk returns an empty, clean chunk.
func NewChunk(coord ChunkCoord) *Chunk {
	return &Chunk{coord: coord, cells: make(map[local]Cell)}
}

// Coord returns the chunk coordinate.
func (c *Chunk) Coord() ChunkCoord { return c.coord }

// Dirty reports whether the chunk changed since it was loaded or last flushed.
func (c *Chunk) Dirty() bool { return c.dirty }

// Len returns the number of non-blank cells.
func (c *Chunk) Len() int { return len(c.cells) }

func (c *Chunk) markClean() { c.dirty = false }

// Cell returns the cell at local offset (lx, ly), or [Blank].
func (c *Chunk) Cell(lx, ly int) Cell {
	cell, ok := c.cells[local{lx, ly}]
	if !ok {
		return Blank
	}

	return cell
}

// Set stores cell at local offset (lx, ly) and reports whether the chunk
// content changed. Panics if the offset is outside the chunk.
func (c *Chunk) Set(lx, ly int, cell Cell) bool {
	if lx < 0 || lx >= ChunkSize || ly < 0 || ly >= ChunkSize {
		panic("canvas: local chunk offset out of range")
	}

	cell = cell.normalize()
	key := local{lx, ly}
	prev, had := c.cells[key]

	if cell == Blank {
		if !had {
			return false
		}

		delete(c.cells, key)
		c.dirty = true

		return true
	}

	if had && prev == cell {
		return false
	}

	c.cells[key] = cell
	c.dirty = true

	return true
}

// Entries returns the non-blank cells as local-offset Placed values, ordered
// row by row.
func (c *Chunk) Entries() []Placed {
	out := make([]Placed, 0, len(c.cells))
	for k, cell := range c.cells {
		out = append(out, Placed{X: k.lx, Y: k.ly, Cell: cell})
	}

	slices.SortFunc(out, func(a, b Placed) int {
		return cmp.Or(cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X))
	})

	return out
}
