package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
)

const replPrompt = "canvas> "

// prompter reads one line of REPL input.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// linePrompter reads plain lines, for piped input and tests.
type linePrompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

func (p *linePrompter) Prompt(prompt string) (string, error) {
	_, _ = fmt.Fprint(p.out, prompt)

	if !p.sc.Scan() {
		err := p.sc.Err()
		if err == nil {
			err = io.EOF
		}

		return "", err
	}

	return p.sc.Text(), nil
}

func (*linePrompter) AppendHistory(string) {}

func (*linePrompter) Close() error { return nil }

// termPrompter wraps liner for interactive terminals.
type termPrompter struct {
	state *liner.State
}

func newTermPrompter(names []string) *termPrompter {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		var out []string

		for _, name := range names {
			if strings.HasPrefix(name, strings.ToLower(line)) {
				out = append(out, name)
			}
		}

		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}

	return &termPrompter{state: state}
}

func (p *termPrompter) Prompt(prompt string) (string, error) {
	line, err := p.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	return line, err
}

func (p *termPrompter) AppendHistory(line string) { p.state.AppendHistory(line) }

func (p *termPrompter) Close() error {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = p.state.WriteHistory(f)
			_ = f.Close()
		}
	}

	return p.state.Close()
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".asciicanvas_history")
}

func newPrompter(in io.Reader, out io.Writer, names []string) prompter {
	if f, ok := in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		return newTermPrompter(names)
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &linePrompter{sc: bufio.NewScanner(in), out: out}
}

// runREPL keeps one canvas open and runs commands line by line, so undo and
// redo see every edit of the session.
func runREPL(ctx context.Context, s *session, in io.Reader, out, errOut io.Writer) error {
	names := []string{"help", "quit", "exit"}
	for _, cmd := range commands(s) {
		names = append(names, cmd.Name())
	}

	slices.Sort(names)

	p := newPrompter(in, out, names)
	defer func() { _ = p.Close() }()

	c, err := s.canvas(ctx)
	if err != nil {
		return err
	}

	fprintln(out, "asciicanvas", s.cfg.DocumentPath, fmt.Sprintf("(last_seq=%d)", c.Stats().LastSeq))
	fprintln(out, "Type 'help' for available commands.")

	for ctx.Err() == nil {
		line, err := p.Prompt(replPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fprintln(out)

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		p.AppendHistory(line)

		name := strings.ToLower(fields[0])

		switch name {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			for _, cmd := range commands(s) {
				fprintln(out, cmd.HelpLine())
			}

			continue
		}

		cmd := findCommand(commands(s), name)
		if cmd == nil {
			fprintln(errOut, "error: unknown command:", name, "(type 'help' for commands)")

			continue
		}

		o := NewIO(out, errOut)
		if cmd.Run(ctx, o, fields[1:]) == 0 {
			_ = o.Finish()
		}
	}

	return nil
}
