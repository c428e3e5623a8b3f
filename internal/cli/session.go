package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/calvinalkan/asciicanvas/internal/config"
	"github.com/calvinalkan/asciicanvas/pkg/canvas"
	"github.com/calvinalkan/asciicanvas/pkg/canvas/store"
)

// session owns the document canvas for one invocation. The canvas is opened
// on first use, so commands like print-config never touch the document.
type session struct {
	cfg config.Config
	log zerolog.Logger
	c   *canvas.Canvas
}

func newSession(cfg config.Config, log zerolog.Logger) *session {
	return &session{cfg: cfg, log: log}
}

func (s *session) canvas(ctx context.Context) (*canvas.Canvas, error) {
	if s.c != nil {
		return s.c, nil
	}

	err := os.MkdirAll(filepath.Dir(s.cfg.DocumentPath), 0o750)
	if err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}

	st, err := store.New(s.cfg.Backend, s.cfg.DocumentPath)
	if err != nil {
		return nil, err
	}

	c := canvas.New(st,
		canvas.WithCheckpointInterval(s.cfg.CheckpointInterval),
		canvas.WithUndoLimit(s.cfg.UndoLimit),
		canvas.WithLogger(s.log.With().Str("document", s.cfg.DocumentPath).Logger()),
	)

	err = c.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.cfg.DocumentPath, err)
	}

	s.c = c

	return c, nil
}

// close checkpoints and releases the document if it was opened.
func (s *session) close() error {
	if s.c == nil {
		return nil
	}

	err := s.c.Close()
	s.c = nil

	return err
}
