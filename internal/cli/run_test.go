package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/asciicanvas/internal/cli"
)

func Test_Run_Prints_Usage_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: asciicanvas [options] <command> [args]")
	cli.AssertContains(t, stdout, "export <file>")
	cli.AssertContains(t, stdout, "repl")
}

func Test_Run_Fails_When_Command_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("paint")

	cli.AssertContains(t, stderr, "unknown command: paint")
}

func Test_Run_Fails_When_Global_Flag_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--colour", "get", "0", "0")

	cli.AssertContains(t, stderr, "error:")
}

func Test_Command_Help_Shows_Flags(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("rect", "--help")

	cli.AssertContains(t, stdout, "Usage: asciicanvas rect [--fill]")
	cli.AssertContains(t, stdout, "--fill")
}

func Test_Command_Fails_With_Help_When_Flag_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, stderr, code := c.Run("get", "--bogus", "1", "2")

	require.Equal(t, 1, code)
	cli.AssertContains(t, stderr, "unknown flag")
}

func Test_Print_Config_Shows_Defaults_And_Sources(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, `"backend": "sqlite"`)
	cli.AssertContains(t, stdout, "document_path="+c.DocumentPath())
	cli.AssertContains(t, stdout, "(defaults only)")
}

func Test_Print_Config_Applies_Project_File_And_Flags(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".asciicanvas.json", `{
		// project settings
		"document_dir": "docs",
		"backend": "bolt",
	}`)

	stdout := c.MustRun("--undo-limit", "7", "-d", "plan.asciicanvas", "print-config")

	cli.AssertContains(t, stdout, `"backend": "bolt"`)
	cli.AssertContains(t, stdout, `"undo_limit": 7`)
	cli.AssertContains(t, stdout, "document_path="+filepath.Join(c.Dir, "docs", "plan.asciicanvas"))
	cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, ".asciicanvas.json"))
}

func Test_Run_Fails_When_Config_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--backend", "postgres", "stats")

	cli.AssertContains(t, stderr, "unknown backend")
}
