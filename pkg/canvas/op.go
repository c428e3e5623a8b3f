package canvas

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Op is one atomic mutation: the unit of journaling, apply and undo.
//
// The variants are [SetCell], [CreateObject] and [DeleteObject].
type Op interface {
	opName() string
}

// SetCell writes New at (X, Y). Old is filled in by [Canvas.LogAndApply]
// with the cell that was there before, which makes the op invertible.
type SetCell struct {
	X, Y int
	New  Cell
	Old  *Cell
}

// CreateObject registers Object and renders it into the grid. Prior holds
// the cells the rendering overwrote; [Canvas.LogAndApply] captures it.
type CreateObject struct {
	Object Object
	Prior  []Placed
}

// DeleteObject unregisters Object and writes Restore back into the grid. It
// only appears as the inverse of a [CreateObject] during undo.
type DeleteObject struct {
	Object  Object
	Restore []Placed
}

func (SetCell) opName() string      { return opSetCell }
func (CreateObject) opName() string { return opCreateObject }
func (DeleteObject) opName() string { return opDeleteObject }

const (
	opSetCell      = "SET_CELL"
	opCreateObject = "CREATE_OBJECT"
	opDeleteObject = "DELETE_OBJECT"
)

// invertible reports whether op carries enough data to be undone.
func invertible(op Op) bool {
	switch o := op.(type) {
	case SetCell:
		return o.Old != nil
	case CreateObject, DeleteObject:
		return true
	default:
		return false
	}
}

// inverse returns the op that undoes op. Only call it when invertible(op).
func inverse(op Op) Op {
	switch o := op.(type) {
	case SetCell:
		prev := o.New

		return SetCell{X: o.X, Y: o.Y, New: *o.Old, Old: &prev}
	case CreateObject:
		return DeleteObject{Object: o.Object, Restore: o.Prior}
	case DeleteObject:
		return CreateObject{Object: o.Object, Prior: o.Restore}
	default:
		panic(fmt.Sprintf("canvas: inverse of %T", op))
	}
}

// origin records why an op was journaled, so replay can rebuild the undo and
// redo stacks the way the live session left them.
type origin string

const (
	originEdit origin = "edit"
	originUndo origin = "undo"
	originRedo origin = "redo"
)

// opRecord is the journal wire form. Entries without an origin are edits.
type opRecord struct {
	Type    string   `msgpack:"type"`
	Origin  origin   `msgpack:"origin,omitempty"`
	X       int      `msgpack:"x,omitempty"`
	Y       int      `msgpack:"y,omitempty"`
	NewCell *Cell    `msgpack:"new_cell,omitempty"`
	OldCell *Cell    `msgpack:"old_cell,omitempty"`
	ObjData *Record  `msgpack:"obj_data,omitempty"`
	Cells   []Placed `msgpack:"cells,omitempty"`
}

func encodeOp(from origin, op Op) ([]byte, error) {
	rec := opRecord{Type: op.opName(), Origin: from}

	switch o := op.(type) {
	case SetCell:
		cell := o.New.normalize()
		rec.X, rec.Y, rec.NewCell = o.X, o.Y, &cell

		if o.Old != nil {
			old := o.Old.normalize()
			rec.OldCell = &old
		}
	case CreateObject:
		r := o.Object.Record()
		rec.ObjData, rec.Cells = &r, o.Prior
	case DeleteObject:
		r := o.Object.Record()
		rec.ObjData, rec.Cells = &r, o.Restore
	default:
		return nil, fmt.Errorf("encode op: unsupported %T", op)
	}

	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("encode op %s: %w", rec.Type, err)
	}

	return data, nil
}

// decodeOp parses a journal payload. Object ops with an unknown type tag
// return an error wrapping [ErrUnknownObjectType].
func decodeOp(data []byte) (origin, Op, error) {
	var rec opRecord

	err := msgpack.Unmarshal(data, &rec)
	if err != nil {
		return "", nil, fmt.Errorf("decode op: %w: %w", ErrCorruptPayload, err)
	}

	from := rec.Origin
	if from == "" {
		from = originEdit
	}

	switch from {
	case originEdit, originUndo, originRedo:
	default:
		return "", nil, fmt.Errorf("decode op: %w: unknown origin %q", ErrCorruptPayload, from)
	}

	switch rec.Type {
	case opSetCell:
		if rec.NewCell == nil {
			return "", nil, fmt.Errorf("decode op: %w: SET_CELL without new_cell", ErrCorruptPayload)
		}

		return from, SetCell{X: rec.X, Y: rec.Y, New: *rec.NewCell, Old: rec.OldCell}, nil
	case opCreateObject, opDeleteObject:
		if rec.ObjData == nil {
			return "", nil, fmt.Errorf("decode op: %w: %s without obj_data", ErrCorruptPayload, rec.Type)
		}

		obj, err := FromRecord(*rec.ObjData)
		if err != nil {
			if errors.Is(err, ErrUnknownObjectType) {
				return from, nil, wrap(err, withObject(rec.ObjData.ID))
			}

			return "", nil, fmt.Errorf("decode op: %w: %w", ErrCorruptPayload, err)
		}

		if rec.Type == opCreateObject {
			return from, CreateObject{Object: obj, Prior: rec.Cells}, nil
		}

		return from, DeleteObject{Object: obj, Restore: rec.Cells}, nil
	default:
		return "", nil, fmt.Errorf("decode op: %w: unknown type %q", ErrCorruptPayload, rec.Type)
	}
}
