package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/asciicanvas/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

type env struct {
	home string
	work string
	vars map[string]string
}

func newEnv(t *testing.T) env {
	t.Helper()

	home := t.TempDir()

	return env{
		home: home,
		work: t.TempDir(),
		vars: map[string]string{"HOME": home},
	}
}

func (e env) load(t *testing.T, configPath string, o config.Overrides) (config.Config, error) {
	t.Helper()

	return config.Load(config.LoadInput{
		WorkDirOverride: e.work,
		ConfigPath:      configPath,
		Overrides:       o,
		Env:             e.vars,
	})
}

func intPtr(v int) *int { return &v }

func Test_Load_Returns_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	cfg, err := e.load(t, "", config.Overrides{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(e.home, "AsciiCanvas"), cfg.DocumentDir)
	assert.Equal(t, filepath.Join(e.home, "AsciiCanvas", "mydoc.asciicanvas"), cfg.DocumentPath)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 2000, cfg.CheckpointInterval)
	assert.Equal(t, 100, cfg.UndoLimit)
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
	assert.Equal(t, e.work, cfg.EffectiveCwd)
	assert.Empty(t, cfg.Sources.Global)
	assert.Empty(t, cfg.Sources.Project)
}

func Test_Load_Layers_Global_Project_And_Overrides(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	globalPath := filepath.Join(e.home, ".config", "asciicanvas", "config.json")
	projectPath := filepath.Join(e.work, config.FileName)

	writeFile(t, globalPath, `{
		// global defaults
		"backend": "bolt",
		"undo_limit": 5,
		"log_level": "debug",
	}`)
	writeFile(t, projectPath, `{"document": "plan.asciicanvas", "undo_limit": 0}`)

	cfg, err := e.load(t, "", config.Overrides{CheckpointInterval: intPtr(10)})
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Backend)
	assert.Equal(t, 0, cfg.UndoLimit, "project file must be able to set zero")
	assert.Equal(t, 10, cfg.CheckpointInterval)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, filepath.Join(e.home, "AsciiCanvas", "plan.asciicanvas"), cfg.DocumentPath)
	assert.Equal(t, globalPath, cfg.Sources.Global)
	assert.Equal(t, projectPath, cfg.Sources.Project)
}

func Test_Load_Prefers_XDG_Config_Home_When_Set(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	xdg := t.TempDir()
	e.vars["XDG_CONFIG_HOME"] = xdg

	writeFile(t, filepath.Join(xdg, "asciicanvas", "config.json"), `{"backend": "bolt"}`)

	cfg, err := e.load(t, "", config.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Backend)
}

func Test_Load_Uses_Explicit_File_Instead_Of_Project_File(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	writeFile(t, filepath.Join(e.work, config.FileName), `{"document": "project.asciicanvas"}`)
	writeFile(t, filepath.Join(e.work, "custom.json"), `{"document_dir": "docs", "document": "custom.asciicanvas"}`)

	cfg, err := e.load(t, "custom.json", config.Overrides{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(e.work, "docs", "custom.asciicanvas"), cfg.DocumentPath)
	assert.Equal(t, filepath.Join(e.work, "custom.json"), cfg.Sources.Project)
}

func Test_Load_Expands_Home_And_Keeps_Absolute_Document(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	abs := filepath.Join(t.TempDir(), "elsewhere.asciicanvas")

	cfg, err := e.load(t, "", config.Overrides{DocumentDir: "~/drawings"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.home, "drawings"), cfg.DocumentDir)

	cfg, err = e.load(t, "", config.Overrides{Document: abs})
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.DocumentPath)
}

func Test_Load_Returns_Error_When_Input_Invalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		project   string
		overrides config.Overrides
		explicit  string
		want      error
	}{
		{name: "MissingExplicitFile", explicit: "nope.json", want: config.ErrConfigFileNotFound},
		{name: "BrokenJSONC", project: `{"backend": `, want: config.ErrConfigInvalid},
		{name: "UnknownKey", project: `{"ticket_dir": "x"}`, want: config.ErrConfigInvalid},
		{name: "EmptyDocument", project: `{"document": ""}`, want: config.ErrDocumentEmpty},
		{name: "EmptyDocumentDir", project: `{"document_dir": ""}`, want: config.ErrDocumentDirEmpty},
		{name: "UnknownBackend", overrides: config.Overrides{Backend: "postgres"}, want: config.ErrInvalidBackend},
		{name: "ZeroInterval", overrides: config.Overrides{CheckpointInterval: intPtr(0)}, want: config.ErrInvalidInterval},
		{name: "NegativeUndo", project: `{"undo_limit": -1}`, want: config.ErrInvalidUndoLimit},
		{name: "BadLogLevel", overrides: config.Overrides{LogLevel: "loud"}, want: config.ErrInvalidLogLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			if tc.project != "" {
				writeFile(t, filepath.Join(e.work, config.FileName), tc.project)
			}

			_, err := e.load(t, tc.explicit, tc.overrides)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func Test_Load_Accepts_Backend_Aliases(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	for _, name := range []string{"bbolt", "SQLite3", "bolt"} {
		_, err := e.load(t, "", config.Overrides{Backend: name})
		require.NoError(t, err, name)
	}
}

func Test_Format_Omits_Resolved_Fields(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	cfg, err := e.load(t, "", config.Overrides{})
	require.NoError(t, err)

	out, err := config.Format(cfg)
	require.NoError(t, err)

	assert.Contains(t, out, `"backend": "sqlite"`)
	assert.Contains(t, out, `"undo_limit": 100`)
	assert.NotContains(t, out, "DocumentPath")
	assert.NotContains(t, out, "EffectiveCwd")
}
