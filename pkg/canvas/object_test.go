package canvas

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func renderedMap(t *testing.T, cells []Placed) map[[2]int]Cell {
	t.Helper()

	out := make(map[[2]int]Cell, len(cells))
	for _, p := range cells {
		key := [2]int{p.X, p.Y}
		if _, dup := out[key]; dup {
			t.Fatalf("coordinate (%d,%d) rendered twice", p.X, p.Y)
		}

		out[key] = p.Cell
	}

	return out
}

func Test_PageFrame_Render_Yields_Border_Cells_Once_When_5x3(t *testing.T) {
	t.Parallel()

	frame := PageFrame{ID: "page", X: 0, Y: 0, Width: 5, Height: 3}
	got := renderedMap(t, frame.Render())

	if len(got) != 12 {
		t.Fatalf("rendered %d cells, want 12", len(got))
	}

	for x := 1; x < 4; x++ {
		for _, y := range []int{0, 2} {
			if cell := got[[2]int{x, y}]; cell.Ch != '-' {
				t.Errorf("(%d,%d) = %q, want '-'", x, y, cell.Ch)
			}
		}
	}

	// Side columns run the full height, corners included.
	for _, x := range []int{0, 4} {
		for y := range 3 {
			if cell := got[[2]int{x, y}]; cell.Ch != '|' {
				t.Errorf("(%d,%d) = %q, want '|'", x, y, cell.Ch)
			}
		}
	}

	for pos, cell := range got {
		if cell.Bg.Set || cell.Fg.Set {
			t.Errorf("%v has colour %v/%v, want none", pos, cell.Fg, cell.Bg)
		}

		if cell.Owner != "page" {
			t.Errorf("%v owner = %q, want page", pos, cell.Owner)
		}
	}
}

func Test_PageFrame_Render_Handles_Degenerate_Sizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w, h int
		want int
	}{
		{w: 1, h: 1, want: 1},
		{w: 4, h: 1, want: 4},
		{w: 1, h: 4, want: 4},
		{w: 2, h: 2, want: 4},
	}

	for _, tt := range tests {
		got := renderedMap(t, PageFrame{ID: "p", Width: tt.w, Height: tt.h}.Render())
		if len(got) != tt.want {
			t.Errorf("%dx%d rendered %d cells, want %d", tt.w, tt.h, len(got), tt.want)
		}
	}
}

func Test_Table_Render_Draws_Rules_And_Junctions(t *testing.T) {
	t.Parallel()

	table := Table{ID: "t", X: 10, Y: 5, Rows: 2, Cols: 2, CellW: 3, CellH: 1}
	cells := table.Render()
	got := renderedMap(t, cells)

	// Horizontal rules: 3 rows of width 2*4+1 = 9; vertical: 3 columns x 2 rows x 1.
	if len(got) != 3*9+3*2 {
		t.Fatalf("rendered %d cells, want %d", len(got), 3*9+3*2)
	}

	want := []string{
		"┌───┬───┐",
		"│   │   │",
		"├───┼───┤",
		"│   │   │",
		"└───┴───┘",
	}

	box := table.BoundingBox()
	if box != (Rect{MinX: 10, MinY: 5, MaxX: 18, MaxY: 9}) {
		t.Fatalf("bounding box = %+v", box)
	}

	for dy, line := range want {
		dx := 0
		for _, ch := range line {
			cell, ok := got[[2]int{box.MinX + dx, box.MinY + dy}]

			if ch == ' ' {
				if ok {
					t.Errorf("(%d,%d) rendered %q, want nothing", dx, dy, cell.Ch)
				}
			} else if cell.Ch != ch || cell.Owner != "t" {
				t.Errorf("(%d,%d) = %v, want %q owned by t", dx, dy, cell, ch)
			}

			dx++
		}
	}
}

func Test_Math_Render_Places_One_Cell_Per_Rune(t *testing.T) {
	t.Parallel()

	m := Math{ID: "m", X: -2, Y: 4, RawText: "√x²"}

	want := []Placed{
		At(-2, 4, Cell{Ch: '√', Owner: "m"}),
		At(-1, 4, Cell{Ch: 'x', Owner: "m"}),
		At(0, 4, Cell{Ch: '²', Owner: "m"}),
	}

	if diff := cmp.Diff(want, m.Render()); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}

	if box := m.BoundingBox(); box != (Rect{MinX: -2, MinY: 4, MaxX: 1, MaxY: 4}) {
		t.Fatalf("bounding box = %+v", box)
	}
}

func Test_FromRecord_Round_Trips_Record(t *testing.T) {
	t.Parallel()

	for _, obj := range []Object{
		Table{ID: "a", X: 1, Y: 2, Rows: 3, Cols: 4, CellW: 5, CellH: 6},
		Math{ID: "b", X: 1, Y: 2, RawText: "1/2"},
		PageFrame{ID: "c", X: 1, Y: 2, Width: 3, Height: 4},
	} {
		got, err := FromRecord(obj.Record())
		if err != nil {
			t.Fatalf("FromRecord(%s): %v", obj.Kind(), err)
		}

		if got != obj {
			t.Fatalf("FromRecord = %#v, want %#v", got, obj)
		}
	}
}

func Test_FromRecord_Returns_Errors_When_Record_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  Record
		want error
	}{
		{name: "unknown type", rec: Record{ID: "x", Type: "Circle"}, want: ErrUnknownObjectType},
		{name: "table without rows", rec: Record{ID: "x", Type: KindTable, Cols: 1, CellW: 1, CellH: 1}, want: ErrInvalidObject},
		{name: "math without text", rec: Record{ID: "x", Type: KindMath}, want: ErrInvalidObject},
		{name: "frame without id", rec: Record{Type: KindPageFrame, Width: 1, Height: 1}, want: ErrInvalidObject},
	}

	for _, tt := range tests {
		_, err := FromRecord(tt.rec)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err=%v, want %v", tt.name, err, tt.want)
		}
	}
}

func Test_NormalizeObject_Assigns_UUIDv7_And_Dereferences_Pointers(t *testing.T) {
	t.Parallel()

	obj, err := normalizeObject(&PageFrame{Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	frame, ok := obj.(PageFrame)
	if !ok {
		t.Fatalf("normalized type = %T, want PageFrame", obj)
	}

	id, err := uuid.Parse(frame.ID)
	if err != nil {
		t.Fatalf("id %q: %v", frame.ID, err)
	}

	if id.Version() != 7 {
		t.Fatalf("id version = %d, want 7", id.Version())
	}

	kept, err := normalizeObject(Math{ID: "keep", RawText: "x"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if kept.ObjectID() != "keep" {
		t.Fatalf("id = %q, want keep", kept.ObjectID())
	}

	_, err = normalizeObject(nil)
	if !errors.Is(err, ErrInvalidObject) {
		t.Fatalf("nil object: err=%v, want ErrInvalidObject", err)
	}
}

func Test_PageFrames_Orders_Top_To_Bottom_Then_Left_To_Right(t *testing.T) {
	t.Parallel()

	objs := []Object{
		PageFrame{ID: "c", X: 0, Y: 70, Width: 1, Height: 1},
		Math{ID: "m", RawText: "x"},
		PageFrame{ID: "b", X: 90, Y: 0, Width: 1, Height: 1},
		PageFrame{ID: "a", X: 0, Y: 0, Width: 1, Height: 1},
	}

	var ids []string
	for _, f := range PageFrames(objs) {
		ids = append(ids, f.ID)
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
