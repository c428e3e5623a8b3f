package canvas

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/asciicanvas/pkg/canvas/store"
)

var (
	// ErrNotConnected is returned by every operation on a canvas that is not
	// open. It is the same value as [store.ErrNotConnected].
	ErrNotConnected = store.ErrNotConnected

	// ErrCorruptMetadata means the stored checkpoint marker could not be
	// parsed. Load recovers by replaying the whole journal.
	ErrCorruptMetadata = errors.New("corrupt metadata")

	// ErrDecodeFallback means a payload was not compressed with a known codec
	// and was decoded as raw bytes instead.
	ErrDecodeFallback = errors.New("payload not compressed, decoded as raw")

	// ErrUnknownObjectType means a stored object record carries a type tag
	// this version does not know. Load skips such objects.
	ErrUnknownObjectType = errors.New("unknown object type")

	// ErrInvalidObject is returned when an object fails validation.
	ErrInvalidObject = errors.New("invalid object")

	// ErrCorruptPayload means a chunk, object or journal payload could not be
	// decoded at all.
	ErrCorruptPayload = errors.New("corrupt payload")

	// ErrObjectNotFound is returned when no object has the requested id.
	ErrObjectNotFound = errors.New("object not found")

	// ErrRegionTooLarge is returned by Region when the requested area exceeds
	// [MaxRegionCells].
	ErrRegionTooLarge = errors.New("region too large")

	// ErrAlreadyLoaded is returned by Load on a canvas that is loading or open.
	ErrAlreadyLoaded = errors.New("canvas already loaded")
)

// Error carries the grid location behind a failure.
//
// The underlying message comes first, followed by whatever context is known:
//
//	decode chunk: corrupt payload (chunk=3,-1)
//	create object: invalid object (object=0191...)
//	replay journal: corrupt payload (seq=42)
//
// Use [errors.As] to read the fields and [errors.Is] for sentinels.
type Error struct {
	// Chunk is set when the failure concerns one chunk.
	Chunk *ChunkCoord

	// ObjectID is set when the failure concerns one object.
	ObjectID string

	// Seq is the journal sequence number, when known.
	Seq uint64

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Chunk != nil {
		parts = append(parts, fmt.Sprintf("chunk=%d,%d", e.Chunk.CX, e.Chunk.CY))
	}

	if e.ObjectID != "" {
		parts = append(parts, "object="+e.ObjectID)
	}

	if e.Seq != 0 {
		parts = append(parts, fmt.Sprintf("seq=%d", e.Seq))
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

type errOpt func(*Error)

func withChunk(c ChunkCoord) errOpt {
	return func(e *Error) { e.Chunk = &c }
}

func withObject(id string) errOpt {
	return func(e *Error) { e.ObjectID = id }
}

func withSeq(seq uint64) errOpt {
	return func(e *Error) { e.Seq = seq }
}

// wrap attaches context to err. An existing *Error keeps the fields it
// already has and only gains missing ones.
func wrap(err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}

	var extra Error
	for _, opt := range opts {
		opt(&extra)
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Chunk == nil {
			existing.Chunk = extra.Chunk
		}

		if existing.ObjectID == "" {
			existing.ObjectID = extra.ObjectID
		}

		if existing.Seq == 0 {
			existing.Seq = extra.Seq
		}

		return err
	}

	extra.Err = err

	return &extra
}
