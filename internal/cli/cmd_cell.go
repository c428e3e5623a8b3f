package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/asciicanvas/pkg/canvas"
)

var errOneChar = errors.New("expected exactly one character")

// newFlags returns a flag set that stops at the first positional argument,
// so "set 3 -4 x" keeps -4 as a coordinate.
func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetInterspersed(false)

	return fs
}

const coordHint = "Flags go before positional arguments. Use -- before a leading negative coordinate."

// GetCmd returns the get command.
func GetCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("get"),
		Usage: "get <x> <y>",
		Short: "Print one cell",
		Long:  "Print the character, colours and owner of the cell at (x, y).\n" + coordHint,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			xy, err := intArgs(args, "x", "y")
			if err != nil {
				return err
			}

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			cell, err := c.GetCell(ctx, xy[0], xy[1])
			if err != nil {
				return err
			}

			o.Println(cell.String())

			return nil
		},
	}
}

// SetCmd returns the set command.
func SetCmd(s *session) *Command {
	fs := newFlags("set")
	fg := fs.Int("fg", -1, "foreground palette index (-1 for none)")
	bg := fs.Int("bg", -1, "background palette index (-1 for none)")
	owner := fs.String("owner", "", "owner tag")

	return &Command{
		Flags: fs,
		Usage: "set [flags] <x> <y> <char>",
		Short: "Set one cell",
		Long:  "Write one character at (x, y). The write is journaled and undoable.\n" + coordHint,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("%w: want x y char, got %d", errArgCount, len(args))
			}

			xy, err := intArgs(args[:2], "x", "y")
			if err != nil {
				return err
			}

			if utf8.RuneCountInString(args[2]) != 1 {
				return fmt.Errorf("%w: %q", errOneChar, args[2])
			}

			ch, _ := utf8.DecodeRuneInString(args[2])

			fgColor, err := colorFlag(*fg)
			if err != nil {
				return err
			}

			bgColor, err := colorFlag(*bg)
			if err != nil {
				return err
			}

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			cell := canvas.Cell{Ch: ch, Fg: fgColor, Bg: bgColor, Owner: *owner}

			return c.LogAndApply(ctx, canvas.SetCell{X: xy[0], Y: xy[1], New: cell})
		},
	}
}

// TextCmd returns the text command.
func TextCmd(s *session) *Command {
	return &Command{
		Flags: newFlags("text"),
		Usage: "text <x> <y> <text>...",
		Short: "Write text starting at a cell",
		Long: "Write text one cell per character starting at (x, y). Remaining arguments are\n" +
			"joined with spaces; \\n starts a new line at column x.\n" + coordHint,
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			if len(args) < 3 {
				return fmt.Errorf("%w: want x y text", errArgCount)
			}

			xy, err := intArgs(args[:2], "x", "y")
			if err != nil {
				return err
			}

			text := strings.ReplaceAll(strings.Join(args[2:], " "), `\n`, "\n")

			c, err := s.canvas(ctx)
			if err != nil {
				return err
			}

			return c.WriteText(ctx, xy[0], xy[1], text)
		},
	}
}
