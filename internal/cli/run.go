package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/asciicanvas/internal/config"
)

// commands returns fresh command instances bound to s. Commands hold parsed
// flag state, so the REPL builds a new set per line.
func commands(s *session) []*Command {
	return []*Command{
		GetCmd(s),
		SetCmd(s),
		TextCmd(s),
		LineCmd(s),
		RectCmd(s),
		TableCmd(s),
		MathCmd(s),
		FrameCmd(s),
		ObjectsCmd(s),
		ShowCmd(s),
		UndoCmd(s),
		RedoCmd(s),
		CheckpointCmd(s),
		StatsCmd(s),
		ExportCmd(s),
		PrintConfigCmd(s.cfg),
	}
}

func findCommand(cmds []*Command, name string) *Command {
	for _, cmd := range cmds {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

type globalFlags struct {
	fs         *flag.FlagSet
	workDir    string
	configPath string
	overrides  config.Overrides
	interval   int
	undoLimit  int
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{fs: flag.NewFlagSet("asciicanvas", flag.ContinueOnError)}
	g.fs.SetInterspersed(false)
	g.fs.SetOutput(&strings.Builder{})

	g.fs.StringVarP(&g.workDir, "cwd", "C", "", "run as if started in `dir`")
	g.fs.StringVarP(&g.configPath, "config", "c", "", "use the specified config `file`")
	g.fs.StringVarP(&g.overrides.Document, "document", "d", "", "document `file` name or path")
	g.fs.StringVar(&g.overrides.DocumentDir, "document-dir", "", "directory holding documents")
	g.fs.StringVarP(&g.overrides.Backend, "backend", "b", "", "store backend: sqlite or bolt")
	g.fs.IntVar(&g.interval, "checkpoint-interval", 0, "journal entries between automatic checkpoints")
	g.fs.IntVar(&g.undoLimit, "undo-limit", 0, "undo and redo history capacity")
	g.fs.StringVar(&g.overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	g.fs.BoolVarP(&g.help, "help", "h", false, "show help")

	return g
}

func (g *globalFlags) parse(args []string) error {
	err := g.fs.Parse(args)
	if err != nil {
		return err
	}

	if g.fs.Changed("checkpoint-interval") {
		g.overrides.CheckpointInterval = &g.interval
	}

	if g.fs.Changed("undo-limit") {
		g.overrides.UndoLimit = &g.undoLimit
	}

	return nil
}

// Run is the main entry point. Returns exit code.
//
// A signal on sigCh cancels the running command; the document is still
// checkpointed and closed before Run returns.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	g := newGlobalFlags()

	if len(args) > 0 {
		args = args[1:]
	}

	err := g.parse(args)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fprintln(errOut, "error:", err)
		printUsage(errOut, g)

		return 1
	}

	rest := g.fs.Args()
	if g.help || errors.Is(err, flag.ErrHelp) || len(rest) == 0 {
		printUsage(out, g)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: g.workDir,
		ConfigPath:      g.configPath,
		Overrides:       g.overrides,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	logger := newLogger(errOut, cfg.Level())
	s := newSession(cfg, logger)

	code := dispatch(ctx, s, in, out, errOut, rest)

	err = s.close()
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	return code
}

func dispatch(ctx context.Context, s *session, in io.Reader, out, errOut io.Writer, args []string) int {
	name := args[0]

	if name == "repl" {
		err := runREPL(ctx, s, in, out, errOut)
		if err != nil {
			fprintln(errOut, "error:", err)

			return 1
		}

		return 0
	}

	cmd := findCommand(commands(s), name)
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)

		return 1
	}

	o := NewIO(out, errOut)

	code := cmd.Run(ctx, o, args[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, g *globalFlags) {
	fprintln(w, `asciicanvas - persistent infinite character canvas

Usage: asciicanvas [options] <command> [args]

Options:`)
	fprintln(w, g.fs.FlagUsages())
	fprintln(w, "Commands:")

	for _, cmd := range commands(newSession(config.Config{}, zerolog.Nop())) {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w, (&Command{Usage: "repl", Short: "Interactive session on one open document"}).HelpLine())
	fprintln(w)
	fprintln(w, "Run 'asciicanvas <command> --help' for command details.")
}
