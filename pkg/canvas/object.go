package canvas

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Kind is the type tag stored next to every object record.
type Kind string

const (
	KindTable     Kind = "Table"
	KindMath      Kind = "Math"
	KindPageFrame Kind = "PageFrame"
)

// Rect is a bounding box. Max coordinates follow each variant's own extent
// rules (see the variant docs).
type Rect struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Contains reports whether (x, y) lies inside r, max edges included.
func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Object is a drawable record anchored to the grid.
//
// The set of variants is closed: [Table], [Math] and [PageFrame]. Adding a
// variant means implementing this interface and adding a case to
// [FromRecord].
type Object interface {
	ObjectID() string
	Kind() Kind
	BoundingBox() Rect
	// Render returns every cell the object contributes, each owned by the
	// object's id. Coordinates are unique.
	Render() []Placed
	Validate() error
	Record() Record

	sealed()
}

// Record is the flat, serialisable form of every object variant.
type Record struct {
	ID      string `msgpack:"id"`
	Type    Kind   `msgpack:"type"`
	X       int    `msgpack:"x"`
	Y       int    `msgpack:"y"`
	Rows    int    `msgpack:"rows,omitempty"`
	Cols    int    `msgpack:"cols,omitempty"`
	CellW   int    `msgpack:"cell_w,omitempty"`
	CellH   int    `msgpack:"cell_h,omitempty"`
	RawText string `msgpack:"raw_text,omitempty"`
	Width   int    `msgpack:"width,omitempty"`
	Height  int    `msgpack:"height,omitempty"`
}

// FromRecord rebuilds the typed variant for r.
//
// Returns an error wrapping [ErrUnknownObjectType] for unknown tags and
// [ErrInvalidObject] when the rebuilt object fails validation.
func FromRecord(r Record) (Object, error) {
	var obj Object

	switch r.Type {
	case KindTable:
		obj = Table{ID: r.ID, X: r.X, Y: r.Y, Rows: r.Rows, Cols: r.Cols, CellW: r.CellW, CellH: r.CellH}
	case KindMath:
		obj = Math{ID: r.ID, X: r.X, Y: r.Y, RawText: r.RawText}
	case KindPageFrame:
		obj = PageFrame{ID: r.ID, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjectType, r.Type)
	}

	err := obj.Validate()
	if err != nil {
		return nil, err
	}

	return obj, nil
}

// NewID returns a fresh, time-ordered object id.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// normalizeObject dereferences pointer variants and assigns an id when the
// object has none.
func normalizeObject(obj Object) (Object, error) {
	switch o := obj.(type) {
	case Table:
		if o.ID == "" {
			o.ID = NewID()
		}

		return o, nil
	case *Table:
		if o == nil {
			return nil, fmt.Errorf("%w: nil table", ErrInvalidObject)
		}

		return normalizeObject(*o)
	case Math:
		if o.ID == "" {
			o.ID = NewID()
		}

		return o, nil
	case *Math:
		if o == nil {
			return nil, fmt.Errorf("%w: nil math label", ErrInvalidObject)
		}

		return normalizeObject(*o)
	case PageFrame:
		if o.ID == "" {
			o.ID = NewID()
		}

		return o, nil
	case *PageFrame:
		if o == nil {
			return nil, fmt.Errorf("%w: nil page frame", ErrInvalidObject)
		}

		return normalizeObject(*o)
	case nil:
		return nil, fmt.Errorf("%w: nil object", ErrInvalidObject)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownObjectType, obj)
	}
}

func invalid(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidObject, kind, fmt.Sprintf(format, args...))
}

// Table is a grid of rows x cols cells, each CellW wide and CellH tall,
// drawn with box-drawing rules. The grid lines sit on the bounding box edges,
// so the table covers columns X..X+Cols*(CellW+1) and rows
// Y..Y+Rows*(CellH+1), both ends inclusive.
type Table struct {
	ID    string
	X, Y  int
	Rows  int
	Cols  int
	CellW int
	CellH int
}

func (t Table) ObjectID() string { return t.ID }
func (Table) Kind() Kind         { return KindTable }
func (Table) sealed()            {}

func (t Table) BoundingBox() Rect {
	return Rect{
		MinX: t.X,
		MinY: t.Y,
		MaxX: t.X + t.Cols*(t.CellW+1),
		MaxY: t.Y + t.Rows*(t.CellH+1),
	}
}

func (t Table) Validate() error {
	if t.ID == "" {
		return invalid(KindTable, "empty id")
	}

	if t.Rows <= 0 || t.Cols <= 0 {
		return invalid(KindTable, "rows=%d cols=%d, both must be positive", t.Rows, t.Cols)
	}

	if t.CellW <= 0 || t.CellH <= 0 {
		return invalid(KindTable, "cell size %dx%d, both must be positive", t.CellW, t.CellH)
	}

	return nil
}

func (t Table) Record() Record {
	return Record{ID: t.ID, Type: KindTable, X: t.X, Y: t.Y, Rows: t.Rows, Cols: t.Cols, CellW: t.CellW, CellH: t.CellH}
}

// tableJunctions is indexed by [row position][column position], where a
// position is 0 for the first rule, 1 for an inner rule, 2 for the last.
var tableJunctions = [3][3]rune{
	{'┌', '┬', '┐'},
	{'├', '┼', '┤'},
	{'└', '┴', '┘'},
}

func rulePos(i, last int) int {
	switch i {
	case 0:
		return 0
	case last:
		return 2
	default:
		return 1
	}
}

func (t Table) Render() []Placed {
	stepX, stepY := t.CellW+1, t.CellH+1
	box := t.BoundingBox()

	var out []Placed

	for r := 0; r <= t.Rows; r++ {
		y := t.Y + r*stepY

		for x := box.MinX; x <= box.MaxX; x++ {
			ch := '─'
			if (x-t.X)%stepX == 0 {
				ch = tableJunctions[rulePos(r, t.Rows)][rulePos((x-t.X)/stepX, t.Cols)]
			}

			out = append(out, At(x, y, Cell{Ch: ch, Owner: t.ID}))
		}

		if r == t.Rows {
			break
		}

		for c := 0; c <= t.Cols; c++ {
			x := t.X + c*stepX
			for dy := 1; dy <= t.CellH; dy++ {
				out = append(out, At(x, y+dy, Cell{Ch: '│', Owner: t.ID}))
			}
		}
	}

	return out
}

// Math is a text label. Each rune of RawText occupies one cell, left to
// right from (X, Y).
type Math struct {
	ID      string
	X, Y    int
	RawText string
}

func (m Math) ObjectID() string { return m.ID }
func (Math) Kind() Kind         { return KindMath }
func (Math) sealed()            {}

func (m Math) BoundingBox() Rect {
	return Rect{MinX: m.X, MinY: m.Y, MaxX: m.X + len([]rune(m.RawText)), MaxY: m.Y}
}

func (m Math) Validate() error {
	if m.ID == "" {
		return invalid(KindMath, "empty id")
	}

	if m.RawText == "" {
		return invalid(KindMath, "empty text")
	}

	return nil
}

func (m Math) Record() Record {
	return Record{ID: m.ID, Type: KindMath, X: m.X, Y: m.Y, RawText: m.RawText}
}

func (m Math) Render() []Placed {
	out := make([]Placed, 0, len(m.RawText))

	i := 0
	for _, ch := range m.RawText {
		out = append(out, At(m.X+i, m.Y, Cell{Ch: ch, Owner: m.ID}))
		i++
	}

	return out
}

// PageFrame marks a printable page with a dashed border: '-' along the top
// and bottom rows between the corners and '|' down both full sides, so the
// corners are '|'.
type PageFrame struct {
	ID     string
	X, Y   int
	Width  int
	Height int
}

func (p PageFrame) ObjectID() string { return p.ID }
func (PageFrame) Kind() Kind         { return KindPageFrame }
func (PageFrame) sealed()            {}

func (p PageFrame) BoundingBox() Rect {
	return Rect{MinX: p.X, MinY: p.Y, MaxX: p.X + p.Width, MaxY: p.Y + p.Height}
}

// Interior returns the area inside the border, or false when the frame is
// too small to have one.
func (p PageFrame) Interior() (Rect, bool) {
	if p.Width < 3 || p.Height < 3 {
		return Rect{}, false
	}

	return Rect{MinX: p.X + 1, MinY: p.Y + 1, MaxX: p.X + p.Width - 2, MaxY: p.Y + p.Height - 2}, true
}

func (p PageFrame) Validate() error {
	if p.ID == "" {
		return invalid(KindPageFrame, "empty id")
	}

	if p.Width <= 0 || p.Height <= 0 {
		return invalid(KindPageFrame, "size %dx%d, both must be positive", p.Width, p.Height)
	}

	return nil
}

func (p PageFrame) Record() Record {
	return Record{ID: p.ID, Type: KindPageFrame, X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

func (p PageFrame) Render() []Placed {
	dash := Cell{Ch: '-', Owner: p.ID}
	pipe := Cell{Ch: '|', Owner: p.ID}
	bottom := p.Y + p.Height - 1
	right := p.X + p.Width - 1

	var out []Placed

	for x := p.X + 1; x < right; x++ {
		out = append(out, At(x, p.Y, dash))
		if bottom != p.Y {
			out = append(out, At(x, bottom, dash))
		}
	}

	for y := p.Y; y <= bottom; y++ {
		out = append(out, At(p.X, y, pipe))
		if right != p.X {
			out = append(out, At(right, y, pipe))
		}
	}

	return out
}

// sortObjects orders objects by id.
func sortObjects(objs []Object) {
	slices.SortFunc(objs, func(a, b Object) int {
		return cmp.Compare(a.ObjectID(), b.ObjectID())
	})
}

// PageFrames returns the page frames among objs ordered top to bottom, then
// left to right.
func PageFrames(objs []Object) []PageFrame {
	var frames []PageFrame

	for _, obj := range objs {
		if f, ok := obj.(PageFrame); ok {
			frames = append(frames, f)
		}
	}

	slices.SortFunc(frames, func(a, b PageFrame) int {
		return cmp.Or(cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X), cmp.Compare(a.ID, b.ID))
	})

	return frames
}
