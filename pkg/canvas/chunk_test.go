package canvas

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_ChunkOf_Floors_Towards_Negative_Infinity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		x, y   int
		coord  ChunkCoord
		lx, ly int
	}{
		{x: 0, y: 0, coord: ChunkCoord{0, 0}, lx: 0, ly: 0},
		{x: 127, y: 128, coord: ChunkCoord{0, 1}, lx: 127, ly: 0},
		{x: -1, y: -1, coord: ChunkCoord{-1, -1}, lx: 127, ly: 127},
		{x: -128, y: -129, coord: ChunkCoord{-1, -2}, lx: 0, ly: 127},
		{x: 300, y: -300, coord: ChunkCoord{2, -3}, lx: 44, ly: 84},
	}

	for _, tt := range tests {
		coord, lx, ly := ChunkOf(tt.x, tt.y)
		if coord != tt.coord || lx != tt.lx || ly != tt.ly {
			t.Errorf("ChunkOf(%d,%d) = %v,%d,%d, want %v,%d,%d", tt.x, tt.y, coord, lx, ly, tt.coord, tt.lx, tt.ly)
		}
	}
}

func Test_Chunk_Set_Marks_Dirty_Only_When_Content_Changes(t *testing.T) {
	t.Parallel()

	ch := NewChunk(ChunkCoord{})

	if ch.Set(3, 4, Blank) {
		t.Fatal("blank write to empty cell reported a change")
	}

	if ch.Set(3, 4, Cell{}) {
		t.Fatal("zero cell write to empty cell reported a change")
	}

	if ch.Dirty() {
		t.Fatal("chunk dirty after blank-only writes")
	}

	if !ch.Set(3, 4, Char('A')) || !ch.Dirty() {
		t.Fatal("non-blank write did not dirty the chunk")
	}

	ch.markClean()

	if ch.Set(3, 4, Char('A')) {
		t.Fatal("identical write reported a change")
	}

	if !ch.Set(3, 4, Blank) {
		t.Fatal("clearing a cell reported no change")
	}

	if ch.Len() != 0 {
		t.Fatalf("Len = %d after clearing, want 0", ch.Len())
	}

	if got := ch.Cell(3, 4); got != Blank {
		t.Fatalf("cleared cell = %v, want blank", got)
	}
}

func Test_Chunk_Set_Panics_When_Offset_Outside_Chunk(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("Set(128, 0) did not panic")
		}
	}()

	NewChunk(ChunkCoord{}).Set(ChunkSize, 0, Char('x'))
}

func Test_Chunk_Entries_Are_Ordered_Row_By_Row(t *testing.T) {
	t.Parallel()

	ch := NewChunk(ChunkCoord{})
	ch.Set(5, 1, Char('c'))
	ch.Set(9, 0, Char('b'))
	ch.Set(2, 0, Char('a'))

	want := []Placed{
		At(2, 0, Char('a')),
		At(9, 0, Char('b')),
		At(5, 1, Char('c')),
	}

	if diff := cmp.Diff(want, ch.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}
