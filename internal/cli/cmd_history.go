package cli

import (
	"context"
)

// UndoCmd returns the undo command.
func UndoCmd(s *session) *Command {
	fs := newFlags("undo")
	steps := fs.IntP("steps", "n", 1, "number of operations to undo")

	return &Command{
		Flags: fs,
		Usage: "undo [-n <steps>]",
		Short: "Undo the last operations",
		Long: "Revert the newest operations in the undo history. The history belongs to the\n" +
			"open document and is cleared by the checkpoint on exit; use repl to undo\n" +
			"across commands.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			done := 0

			for range max(*steps, 1) {
				ok, err := c.Undo(ctx)
				if err != nil {
					return err
				}

				if !ok {
					break
				}

				done++
			}

			if done == 0 {
				o.Warn("nothing to undo", "the undo history is empty")

				return nil
			}

			o.Printf("undid %d\n", done)

			return nil
		},
	}
}

// RedoCmd returns the redo command.
func RedoCmd(s *session) *Command {
	fs := newFlags("redo")
	steps := fs.IntP("steps", "n", 1, "number of operations to redo")

	return &Command{
		Flags: fs,
		Usage: "redo [-n <steps>]",
		Short: "Redo undone operations",
		Long:  "Re-apply the newest undone operations. Any new edit clears the redo history.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			done := 0

			for range max(*steps, 1) {
				ok, err := c.Redo(ctx)
				if err != nil {
					return err
				}

				if !ok {
					break
				}

				done++
			}

			if done == 0 {
				o.Warn("nothing to redo", "the redo history is empty")

				return nil
			}

			o.Printf("redid %d\n", done)

			return nil
		},
	}
}

// CheckpointCmd returns the checkpoint command.
func CheckpointCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("checkpoint"),
		Usage: "checkpoint",
		Short: "Flush state and truncate the journal",
		Long:  "Write dirty chunks and objects to the store, record the checkpoint marker and truncate the journal.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			err = c.Checkpoint(ctx)
			if err != nil {
				return err
			}

			o.Printf("checkpoint_seq=%d\n", c.Stats().CheckpointSeq)

			return nil
		},
	}
}

// StatsCmd returns the stats command.
func StatsCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("stats"),
		Usage: "stats",
		Short: "Show engine statistics",
		Long:  "Print checkpoint marker, journal position, cache and history sizes as key=value lines.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			st := c.Stats()

			o.Println("document=" + s.cfg.DocumentPath)
			o.Println("backend=" + s.cfg.Backend)
			o.Printf("state=%s\n", st.State)
			o.Printf("checkpoint_seq=%d\n", st.CheckpointSeq)
			o.Printf("last_seq=%d\n", st.LastSeq)
			o.Printf("cached_chunks=%d\n", st.CachedChunks)
			o.Printf("dirty_chunks=%d\n", st.DirtyChunks)
			o.Printf("objects=%d\n", st.Objects)
			o.Printf("dirty_objects=%d\n", st.DirtyObjects)
			o.Printf("undo_depth=%d\n", st.UndoDepth)
			o.Printf("redo_depth=%d\n", st.RedoDepth)

			return nil
		},
	}
}
