package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/calvinalkan/asciicanvas/pkg/canvas"
)

func createObject(ctx context.Context, s *session, o *IO, obj canvas.Object) error {
	c, err := s.canvas(ctx)
	if err != nil {
		return err
	}

	created, err := c.CreateObject(ctx, obj)
	if err != nil {
		return err
	}

	o.Println(created.ObjectID())

	return nil
}

// TableCmd returns the table command.
func TableCmd(s *session) *Command {
	fs := newFlags("table")
	id := fs.String("id", "", "object id (generated when empty)")
	rows := fs.Int("rows", 2, "number of rows")
	cols := fs.Int("cols", 2, "number of columns")
	cellW := fs.Int("cell-w", 8, "interior width of one cell")
	cellH := fs.Int("cell-h", 1, "interior height of one cell")

	return &Command{
		Flags: fs,
		Usage: "table [flags] <x> <y>",
		Short: "Insert a table",
		Long:  "Insert a ruled table with its top-left corner at (x, y). Prints the object id.\n" + coordHint,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			xy, err := intArgs(args, "x", "y")
			if err != nil {
				return err
			}

			return createObject(ctx, s, o, canvas.Table{
				ID: *id, X: xy[0], Y: xy[1],
				Rows: *rows, Cols: *cols, CellW: *cellW, CellH: *cellH,
			})
		},
	}
}

// MathCmd returns the math command.
func MathCmd(s *session) *Command {
	fs := newFlags("math")
	id := fs.String("id", "", "object id (generated when empty)")

	return &Command{
		Flags: fs,
		Usage: "math [--id <id>] <x> <y> <text>...",
		Short: "Insert a math object",
		Long:  "Insert the raw math text at (x, y), one cell per character. Prints the object id.\n" + coordHint,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 3 {
				return fmt.Errorf("%w: want x y text", errArgCount)
			}

			xy, err := intArgs(args[:2], "x", "y")
			if err != nil {
				return err
			}

			return createObject(ctx, s, o, canvas.Math{
				ID: *id, X: xy[0], Y: xy[1], RawText: strings.Join(args[2:], " "),
			})
		},
	}
}

// FrameCmd returns the frame command.
func FrameCmd(s *session) *Command {
	fs := newFlags("frame")
	id := fs.String("id", "", "object id (generated when empty)")

	return &Command{
		Flags: fs,
		Usage: "frame [--id <id>] <x> <y> <width> <height>",
		Short: "Insert a page frame",
		Long: "Insert a page frame outline. Page frames delimit the pages written by export.\n" +
			"Prints the object id.\n" + coordHint,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			p, err := intArgs(args, "x", "y", "width", "height")
			if err != nil {
				return err
			}

			return createObject(ctx, s, o, canvas.PageFrame{
				ID: *id, X: p[0], Y: p[1], Width: p[2], Height: p[3],
			})
		},
	}
}

// ObjectsCmd returns the objects command.
func ObjectsCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("objects"),
		Usage: "objects",
		Short: "List objects",
		Long:  "List every object as: id kind min_x,min_y max_x,max_y.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			objs, err := c.Objects()
			if err != nil {
				return err
			}

			for _, obj := range objs {
				box := obj.BoundingBox()
				o.Printf("%s %s %d,%d %d,%d\n", obj.ObjectID(), obj.Kind(), box.MinX, box.MinY, box.MaxX, box.MaxY)
			}

			return nil
		},
	}
}
