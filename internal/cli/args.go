package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/calvinalkan/asciicanvas/pkg/canvas"
)

var (
	errArgCount   = errors.New("wrong number of arguments")
	errInvalidInt = errors.New("invalid integer")
)

// intArgs parses args as integers named by names. The count must match.
func intArgs(args []string, names ...string) ([]int, error) {
	if len(args) != len(names) {
		return nil, fmt.Errorf("%w: want %d (%v), got %d", errArgCount, len(names), names, len(args))
	}

	out := make([]int, len(args))

	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %q", errInvalidInt, names[i], arg)
		}

		out[i] = v
	}

	return out, nil
}

// colorFlag converts a palette flag value, where -1 means unset.
func colorFlag(v int) (canvas.Color, error) {
	if v < -1 {
		return canvas.Color{}, fmt.Errorf("%w: colour index %d", errInvalidInt, v)
	}

	if v == -1 {
		return canvas.Color{}, nil
	}

	return canvas.Palette(v), nil
}
