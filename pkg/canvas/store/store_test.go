package store_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/asciicanvas/pkg/canvas/store"
)

// backends lists every registered backend so each behaviour is checked on all of them.
var backends = []string{store.BackendSQLite, store.BackendBolt}

func newStore(t *testing.T, backend, path string) store.Store {
	t.Helper()

	st, err := store.New(backend, path)
	if err != nil {
		t.Fatalf("store.New(%q): %v", backend, err)
	}

	return st
}

func openStore(t *testing.T, backend, path string) store.Store {
	t.Helper()

	st := newStore(t, backend, path)

	err := st.Open(t.Context())
	if err != nil {
		t.Fatalf("open %s: %v", backend, err)
	}

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func docPath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), "doc.asciicanvas")
}

func Test_Store_Returns_ErrNotConnected_When_Not_Open(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			st := newStore(t, backend, docPath(t))
			ctx := t.Context()

			checks := map[string]error{}

			_, checks["GetMeta"] = st.GetMeta(ctx, "k")
			checks["SetMeta"] = st.SetMeta(ctx, "k", []byte("v"))
			_, checks["GetChunk"] = st.GetChunk(ctx, 0, 0)
			checks["PutChunk"] = st.PutChunk(ctx, 0, 0, []byte("x"))
			checks["DeleteChunk"] = st.DeleteChunk(ctx, 0, 0)
			_, checks["AllObjects"] = st.AllObjects(ctx)
			checks["PutObject"] = st.PutObject(ctx, "id", "Math", []byte("x"))
			checks["DeleteObject"] = st.DeleteObject(ctx, "id")
			_, checks["AppendJournal"] = st.AppendJournal(ctx, 1, []byte("op"))
			_, checks["JournalAfter"] = st.JournalAfter(ctx, 0)
			_, checks["LastJournalSeq"] = st.LastJournalSeq(ctx)
			checks["TruncateJournalBefore"] = st.TruncateJournalBefore(ctx, 1)

			for name, err := range checks {
				if !errors.Is(err, store.ErrNotConnected) {
					t.Errorf("%s: err=%v, want ErrNotConnected", name, err)
				}
			}
		})
	}
}

func Test_Store_Returns_ErrNotConnected_When_Closed(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			st := openStore(t, backend, docPath(t))

			err := st.Close()
			if err != nil {
				t.Fatalf("close: %v", err)
			}

			err = st.Close()
			if err != nil {
				t.Fatalf("second close: %v", err)
			}

			_, err = st.GetChunk(t.Context(), 1, 1)
			if !errors.Is(err, store.ErrNotConnected) {
				t.Fatalf("err=%v, want ErrNotConnected", err)
			}
		})
	}
}

func Test_Store_Meta_Returns_Nil_When_Absent_And_Last_Write_Wins(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			st := openStore(t, backend, docPath(t))
			ctx := t.Context()

			got, err := st.GetMeta(ctx, "last_checkpoint_seq")
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if got != nil {
				t.Fatalf("absent meta = %q, want nil", got)
			}

			for _, v := range []string{"1", "42"} {
				err = st.SetMeta(ctx, "last_checkpoint_seq", []byte(v))
				if err != nil {
					t.Fatalf("set: %v", err)
				}
			}

			got, err = st.GetMeta(ctx, "last_checkpoint_seq")
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if string(got) != "42" {
				t.Fatalf("meta = %q, want 42", got)
			}
		})
	}
}

func Test_Store_Chunks_Overwrite_And_Delete_When_Negative_Coordinates(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			st := openStore(t, backend, docPath(t))
			ctx := t.Context()

			coords := [][2]int{{0, 0}, {-1, 0}, {0, -1}, {-5, 7}}
			for i, c := range coords {
				err := st.PutChunk(ctx, c[0], c[1], []byte{byte(i), 'a'})
				if err != nil {
					t.Fatalf("put %v: %v", c, err)
				}
			}

			err := st.PutChunk(ctx, -5, 7, []byte("new"))
			if err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			for i, c := range coords {
				want := []byte{byte(i), 'a'}
				if c == [2]int{-5, 7} {
					want = []byte("new")
				}

				got, err := st.GetChunk(ctx, c[0], c[1])
				if err != nil {
					t.Fatalf("get %v: %v", c, err)
				}

				if !bytes.Equal(got, want) {
					t.Fatalf("chunk %v = %q, want %q", c, got, want)
				}
			}

			err = st.DeleteChunk(ctx, -1, 0)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}

			got, err := st.GetChunk(ctx, -1, 0)
			if err != nil {
				t.Fatalf("get deleted: %v", err)
			}

			if got != nil {
				t.Fatalf("deleted chunk = %q, want nil", got)
			}
		})
	}
}

func Test_Store_Objects_Overwrite_And_Delete(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			st := openStore(t, backend, docPath(t))
			ctx := t.Context()

			puts := []store.ObjectRow{
				{ID: "b", Type: "Math", Data: []byte("one")},
				{ID: "a", Type: "Table", Data: []byte("two")},
				{ID: "b", Type: "PageFrame", Data: []byte("three")},
				{ID: "c", Type: "Math", Data: []byte("four")},
			}

			for _, row := range puts {
				err := st.PutObject(ctx, row.ID, row.Type, row.Data)
				if err != nil {
					t.Fatalf("put %s: %v", row.ID, err)
				}
			}

			err := st.DeleteObject(ctx, "c")
			if err != nil {
				t.Fatalf("delete: %v", err)
			}

			got, err := st.AllObjects(ctx)
			if err != nil {
				t.Fatalf("all: %v", err)
			}

			want := []store.ObjectRow{
				{ID: "a", Type: "Table", Data: []byte("two")},
				{ID: "b", Type: "PageFrame", Data: []byte("three")},
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("objects mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_Store_Journal_Seq_Is_Monotonic_When_Truncated_And_Reopened(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			path := docPath(t)
			st := newStore(t, backend, path)
			ctx := t.Context()

			err := st.Open(ctx)
			if err != nil {
				t.Fatalf("open: %v", err)
			}

			var last uint64

			appendN := func(n int) {
				t.Helper()

				for range n {
					seq, err := st.AppendJournal(ctx, 100, []byte("op"))
					if err != nil {
						t.Fatalf("append: %v", err)
					}

					if seq <= last {
						t.Fatalf("seq %d after %d, want strictly increasing", seq, last)
					}

					last = seq
				}
			}

			appendN(3)

			err = st.TruncateJournalBefore(ctx, last)
			if err != nil {
				t.Fatalf("truncate: %v", err)
			}

			empty, err := st.LastJournalSeq(ctx)
			if err != nil {
				t.Fatalf("last seq: %v", err)
			}

			if empty != 0 {
				t.Fatalf("last seq of empty journal = %d, want 0", empty)
			}

			appendN(2)

			err = st.Close()
			if err != nil {
				t.Fatalf("close: %v", err)
			}

			st = newStore(t, backend, path)

			err = st.Open(ctx)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}

			t.Cleanup(func() { _ = st.Close() })

			appendN(2)

			lastSeq, err := st.LastJournalSeq(ctx)
			if err != nil {
				t.Fatalf("last seq: %v", err)
			}

			if lastSeq != last {
				t.Fatalf("last seq = %d, want %d", lastSeq, last)
			}
		})
	}
}

func Test_Store_JournalAfter_Returns_Ascending_Entries_After_Seq(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			st := openStore(t, backend, docPath(t))
			ctx := t.Context()

			var seqs []uint64

			for i := range 5 {
				seq, err := st.AppendJournal(ctx, int64(1000+i), []byte{'o', byte('0' + i)})
				if err != nil {
					t.Fatalf("append: %v", err)
				}

				seqs = append(seqs, seq)
			}

			got, err := st.JournalAfter(ctx, seqs[1])
			if err != nil {
				t.Fatalf("after: %v", err)
			}

			want := []store.JournalEntry{
				{Seq: seqs[2], Timestamp: 1002, Op: []byte("o2")},
				{Seq: seqs[3], Timestamp: 1003, Op: []byte("o3")},
				{Seq: seqs[4], Timestamp: 1004, Op: []byte("o4")},
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("journal mismatch (-want +got):\n%s", diff)
			}

			err = st.TruncateJournalBefore(ctx, seqs[3])
			if err != nil {
				t.Fatalf("truncate: %v", err)
			}

			got, err = st.JournalAfter(ctx, 0)
			if err != nil {
				t.Fatalf("after 0: %v", err)
			}

			if len(got) != 1 || got[0].Seq != seqs[4] {
				t.Fatalf("after truncate = %+v, want only seq %d", got, seqs[4])
			}
		})
	}
}

func Test_Store_Open_Returns_ErrLocked_When_Second_Writer(t *testing.T) {
	t.Parallel()

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			path := docPath(t)
			_ = openStore(t, backend, path)

			second := newStore(t, backend, path)

			err := second.Open(t.Context())
			if !errors.Is(err, store.ErrLocked) {
				_ = second.Close()

				t.Fatalf("second open: err=%v, want ErrLocked", err)
			}
		})
	}
}

func Test_New_Returns_ErrUnknownBackend_When_Name_Not_Registered(t *testing.T) {
	t.Parallel()

	_, err := store.New("postgres", docPath(t))
	if !errors.Is(err, store.ErrUnknownBackend) {
		t.Fatalf("err=%v, want ErrUnknownBackend", err)
	}
}

func Test_New_Selects_Backend_By_Normalized_Name(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{name: "", want: "*store.SQLite"},
		{name: " SQLite3 ", want: "*store.SQLite"},
		{name: "bbolt", want: "*store.Bolt"},
		{name: "bolt", want: "*store.Bolt"},
	}

	for _, tt := range tests {
		st, err := store.New(tt.name, docPath(t))
		if err != nil {
			t.Fatalf("New(%q): %v", tt.name, err)
		}

		var got string

		switch st.(type) {
		case *store.SQLite:
			got = "*store.SQLite"
		case *store.Bolt:
			got = "*store.Bolt"
		}

		if got != tt.want {
			t.Fatalf("New(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
