package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/asciicanvas/pkg/canvas"
)

var errNoPageFrames = errors.New("document has no page frames")

// pageSeparator separates pages in a text export.
const pageSeparator = "\f"

// ShowCmd returns the show command.
func ShowCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("show"),
		Usage: "show <x> <y> <width> <height>",
		Short: "Print a region",
		Long:  "Print the characters of a rectangular region, one line per row.\n" + coordHint,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			p, err := intArgs(args, "x", "y", "width", "height")
			if err != nil {
				return err
			}

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			rows, err := c.Region(ctx, p[0], p[1], p[2], p[3])
			if err != nil {
				return err
			}

			for _, line := range canvas.Lines(rows) {
				o.Println(line)
			}

			return nil
		},
	}
}

// ExportCmd returns the export command.
func ExportCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("export"),
		Usage: "export <file>",
		Short: "Export page frames as text",
		Long: "Write the interior of every page frame to <file>, top to bottom then left to\n" +
			"right. Pages are separated by a form feed. The file is replaced atomically.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: want file", errArgCount)
			}

			path := args[0]
			if !filepath.IsAbs(path) {
				path = filepath.Join(s.cfg.EffectiveCwd, path)
			}

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			text, pages, err := exportText(ctx, c)
			if err != nil {
				return err
			}

			err = atomic.WriteFile(path, strings.NewReader(text))
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			o.Printf("exported %d pages to %s\n", pages, path)

			return nil
		},
	}
}

// exportText renders every page frame interior. Frames too small to have an
// interior produce an empty page.
func exportText(ctx context.Context, c *canvas.Canvas) (string, int, error) {
	objs, err := c.Objects()
	if err != nil {
		return "", 0, err
	}

	frames := canvas.PageFrames(objs)
	if len(frames) == 0 {
		return "", 0, errNoPageFrames
	}

	pages := make([]string, 0, len(frames))

	for _, frame := range frames {
		inner, ok := frame.Interior()
		if !ok {
			pages = append(pages, "")

			continue
		}

		rows, err := c.Region(ctx, inner.MinX, inner.MinY, inner.MaxX-inner.MinX+1, inner.MaxY-inner.MinY+1)
		if err != nil {
			return "", 0, fmt.Errorf("export frame %s: %w", frame.ID, err)
		}

		pages = append(pages, strings.Join(canvas.Lines(rows), "\n")+"\n")
	}

	return strings.Join(pages, pageSeparator), len(pages), nil
}
