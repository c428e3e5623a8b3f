package cli

import (
	"context"

	"github.com/calvinalkan/asciicanvas/pkg/canvas"
)

// LineCmd returns the line command.
func LineCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("line"),
		Usage: "line <x1> <y1> <x2> <y2>",
		Short: "Draw a line",
		Long: "Draw a straight line between two points. Horizontal runs use ─, vertical\n" +
			"runs │, diagonals ╲ or ╱. Every cell is journaled and undoable on its own.\n" + coordHint,
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			p, err := intArgs(args, "x1", "y1", "x2", "y2")
			if err != nil {
				return err
			}

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			return c.Draw(ctx, canvas.LineCells(p[0], p[1], p[2], p[3]))
		},
	}
}

// RectCmd returns the rect command.
func RectCmd(s *session) *Command {
	fs := newFlags("rect")
	fill := fs.Bool("fill", false, "fill the interior with background colour 1")

	return &Command{
		Flags: fs,
		Usage: "rect [--fill] <x1> <y1> <x2> <y2>",
		Short: "Draw a box",
		Long:  "Draw a box with box-drawing corners between two opposite corners.\n" + coordHint,
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			p, err := intArgs(args, "x1", "y1", "x2", "y2")
			if err != nil {
				return err
			}

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			return c.Draw(ctx, canvas.RectCells(p[0], p[1], p[2], p[3], *fill))
		},
	}
}
