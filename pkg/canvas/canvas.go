package canvas

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/calvinalkan/asciicanvas/pkg/canvas/store"
)

const (
	// DefaultCheckpointInterval is the journal growth that triggers an
	// automatic checkpoint.
	DefaultCheckpointInterval = 2000

	// DefaultUndoLimit is the capacity of the undo and redo histories.
	DefaultUndoLimit = 100

	metaCheckpointSeq = "last_checkpoint_seq"
)

// State is the lifecycle state of a [Canvas].
type State int

const (
	StateClosed State = iota
	StateLoading
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateLoading:
		return "loading"
	case StateOpen:
		return "open"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Option configures a [Canvas].
type Option func(*Canvas)

// WithCheckpointInterval sets how many journal entries may accumulate after
// the last checkpoint before LogAndApply checkpoints on its own. Values <= 0
// keep the default.
func WithCheckpointInterval(n int) Option {
	return func(c *Canvas) {
		if n > 0 {
			c.interval = uint64(n)
		}
	}
}

// WithUndoLimit sets the capacity of the undo and redo histories. Zero
// disables history. Negative values keep the default.
func WithUndoLimit(n int) Option {
	return func(c *Canvas) {
		if n >= 0 {
			c.undoLimit = n
		}
	}
}

// WithLogger sets the logger for load, replay and checkpoint events and for
// recovered errors. Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Canvas) { c.log = logger }
}

// WithClock sets the clock used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Canvas) {
		if now != nil {
			c.now = now
		}
	}
}

// Canvas is the grid engine for one document.
//
// It goes Closed -> Loading -> Open via [Canvas.Load] and back to Closed via
// [Canvas.Close]. Closing is terminal: every later call fails with
// [ErrNotConnected].
//
// All methods are serialised by an internal mutex.
type Canvas struct {
	st        store.Store
	log       zerolog.Logger
	now       func() time.Time
	interval  uint64
	undoLimit int

	mu       sync.Mutex
	state    State
	finished bool

	chunks       map[ChunkCoord]*Chunk
	objects      map[string]Object
	dirtyObjects map[string]bool // id -> true to put, false to delete
	marker       uint64
	lastSeq      uint64
	undo         *history
	redo         *history
}

// New returns a closed canvas over st. Call [Canvas.Load] before use.
func New(st store.Store, opts ...Option) *Canvas {
	c := &Canvas{
		st:        st,
		log:       zerolog.Nop(),
		now:       time.Now,
		interval:  DefaultCheckpointInterval,
		undoLimit: DefaultUndoLimit,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.reset()

	return c
}

func (c *Canvas) reset() {
	c.chunks = make(map[ChunkCoord]*Chunk)
	c.objects = make(map[string]Object)
	c.dirtyObjects = make(map[string]bool)
	c.marker, c.lastSeq = 0, 0
	c.undo = newHistory(c.undoLimit)
	c.redo = newHistory(c.undoLimit)
}

// State returns the lifecycle state.
func (c *Canvas) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Canvas) requireOpen() error {
	if c.state != StateOpen {
		return ErrNotConnected
	}

	return nil
}

// Load opens the store, rehydrates objects, reads the checkpoint marker and
// replays the journal tail. On failure the store is closed again and the
// canvas stays Closed, so Load may be retried.
func (c *Canvas) Load(ctx context.Context) error {
	if ctx == nil {
		return errors.New("load: context is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return fmt.Errorf("load: %w", ErrNotConnected)
	}

	if c.state != StateClosed {
		return fmt.Errorf("load: %w", ErrAlreadyLoaded)
	}

	c.state = StateLoading
	start := time.Now()

	err := c.load(ctx)
	if err != nil {
		c.reset()
		c.state = StateClosed

		return errors.Join(fmt.Errorf("load: %w", err), c.st.Close())
	}

	c.state = StateOpen

	c.log.Info().
		Int("objects", len(c.objects)).
		Uint64("checkpoint_seq", c.marker).
		Uint64("last_seq", c.lastSeq).
		Dur("took", time.Since(start)).
		Msg("canvas loaded")

	return nil
}

func (c *Canvas) load(ctx context.Context) error {
	err := c.st.Open(ctx)
	if err != nil {
		return err
	}

	err = c.loadObjects(ctx)
	if err != nil {
		return err
	}

	err = c.loadMarker(ctx)
	if err != nil {
		return err
	}

	return c.replay(ctx)
}

func (c *Canvas) loadObjects(ctx context.Context) error {
	rows, err := c.st.AllObjects(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		obj, fellBack, err := decodeObject(row.Type, row.Data)
		if fellBack {
			c.warn(wrap(ErrDecodeFallback, withObject(row.ID)), "object payload fell back to raw decoding")
		}

		if errors.Is(err, ErrUnknownObjectType) {
			c.warn(wrap(err, withObject(row.ID)), "skipping object with unknown type")

			continue
		}

		if err != nil {
			return wrap(err, withObject(row.ID))
		}

		c.objects[obj.ObjectID()] = obj
	}

	return nil
}

func (c *Canvas) loadMarker(ctx context.Context) error {
	raw, err := c.st.GetMeta(ctx, metaCheckpointSeq)
	if err != nil {
		return err
	}

	if raw == nil {
		return nil
	}

	seq, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		c.warn(fmt.Errorf("%w: %s=%q: %w", ErrCorruptMetadata, metaCheckpointSeq, raw, err), "replaying whole journal")

		return nil
	}

	c.marker = seq
	c.lastSeq = seq

	return nil
}

// replay applies every journal entry after the marker through apply and
// rebuilds the undo and redo histories from the entries' origins.
func (c *Canvas) replay(ctx context.Context) error {
	entries, err := c.st.JournalAfter(ctx, c.marker)
	if err != nil {
		return err
	}

	applied := 0

	for _, entry := range entries {
		c.lastSeq = max(c.lastSeq, entry.Seq)

		from, op, err := decodeOp(entry.Op)
		if errors.Is(err, ErrUnknownObjectType) {
			c.warn(wrap(err, withSeq(entry.Seq)), "skipping journal entry with unknown object type")

			continue
		}

		if err != nil {
			return wrap(err, withSeq(entry.Seq))
		}

		err = c.apply(ctx, op)
		if err != nil {
			return wrap(fmt.Errorf("replay: %w", err), withSeq(entry.Seq))
		}

		c.replayHistory(from, op)

		applied++
	}

	if applied > 0 {
		c.log.Debug().Int("entries", applied).Uint64("after_seq", c.marker).Msg("journal replayed")
	}

	return nil
}

func (c *Canvas) replayHistory(from origin, op Op) {
	switch from {
	case originEdit:
		if invertible(op) {
			c.undo.Push(op)
		}

		c.redo.Clear()
	case originUndo:
		// op is the inverse that was applied; the undone edit moves to redo.
		undone, ok := c.undo.Pop()
		if !ok && invertible(op) {
			undone = inverse(op)
		}

		if undone != nil {
			c.redo.Push(undone)
		}
	case originRedo:
		c.redo.Pop()
		c.undo.Push(op)
	}
}

// Close checkpoints, closes the store and moves to the terminal Closed
// state. Safe to call more than once.
func (c *Canvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return nil
	}

	c.finished = true

	if c.state != StateOpen {
		c.state = StateClosed

		return nil
	}

	cpErr := c.checkpoint(context.Background())
	closeErr := c.st.Close()

	c.state = StateClosed
	c.reset()

	if cpErr != nil {
		cpErr = fmt.Errorf("close: final checkpoint: %w", cpErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("close: %w", closeErr)
	}

	return errors.Join(cpErr, closeErr)
}

func (c *Canvas) chunk(ctx context.Context, coord ChunkCoord) (*Chunk, error) {
	if ch, ok := c.chunks[coord]; ok {
		return ch, nil
	}

	data, err := c.st.GetChunk(ctx, coord.CX, coord.CY)
	if err != nil {
		return nil, wrap(err, withChunk(coord))
	}

	ch := NewChunk(coord)

	if data != nil {
		var fellBack bool

		ch, fellBack, err = decodeChunk(coord, data)
		if fellBack {
			c.warn(wrap(ErrDecodeFallback, withChunk(coord)), "chunk payload fell back to raw decoding")
		}

		if err != nil {
			return nil, wrap(err, withChunk(coord))
		}
	}

	c.chunks[coord] = ch

	return ch, nil
}

func (c *Canvas) cell(ctx context.Context, x, y int) (Cell, error) {
	coord, lx, ly := ChunkOf(x, y)

	ch, err := c.chunk(ctx, coord)
	if err != nil {
		return Cell{}, err
	}

	return ch.Cell(lx, ly), nil
}

func (c *Canvas) setCell(ctx context.Context, x, y int, cell Cell) error {
	coord, lx, ly := ChunkOf(x, y)

	ch, err := c.chunk(ctx, coord)
	if err != nil {
		return err
	}

	ch.Set(lx, ly, cell)

	return nil
}

// GetCell returns the cell at (x, y), loading its chunk on first access.
func (c *Canvas) GetCell(ctx context.Context, x, y int) (Cell, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return Cell{}, err
	}

	return c.cell(ctx, x, y)
}

// SetCell writes cell at (x, y) without journaling or undo tracking.
//
// It is the primitive under [Canvas.LogAndApply]. The write reaches the store
// at the next checkpoint; a crash before then loses it. Interactive edits
// must use LogAndApply.
func (c *Canvas) SetCell(ctx context.Context, x, y int, cell Cell) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return err
	}

	return c.setCell(ctx, x, y, cell)
}

// apply is the in-memory state transition shared by live writes and replay.
// It never journals and never touches the histories.
func (c *Canvas) apply(ctx context.Context, op Op) error {
	switch o := op.(type) {
	case SetCell:
		return c.setCell(ctx, o.X, o.Y, o.New)
	case CreateObject:
		id := o.Object.ObjectID()
		c.objects[id] = o.Object
		c.dirtyObjects[id] = true

		for _, p := range o.Object.Render() {
			err := c.setCell(ctx, p.X, p.Y, p.Cell)
			if err != nil {
				return wrap(err, withObject(id))
			}
		}

		return nil
	case DeleteObject:
		id := o.Object.ObjectID()
		delete(c.objects, id)
		c.dirtyObjects[id] = false

		for _, p := range o.Restore {
			err := c.setCell(ctx, p.X, p.Y, p.Cell)
			if err != nil {
				return wrap(err, withObject(id))
			}
		}

		return nil
	default:
		return fmt.Errorf("apply: unsupported op %T", op)
	}
}

// touch loads every chunk op will write, so a later apply cannot fail on I/O.
func (c *Canvas) touch(ctx context.Context, op Op) error {
	var cells []Placed

	switch o := op.(type) {
	case SetCell:
		cells = []Placed{At(o.X, o.Y, o.New)}
	case CreateObject:
		cells = o.Object.Render()
	case DeleteObject:
		cells = o.Restore
	}

	for _, p := range cells {
		coord, _, _ := ChunkOf(p.X, p.Y)

		_, err := c.chunk(ctx, coord)
		if err != nil {
			return err
		}
	}

	return nil
}

// LogAndApply is the write path for interactive edits.
//
// SetCell ops get Old filled in with the current cell; CreateObject ops get
// Prior filled in with the cells the object will cover. The op is then
// appended to the journal, applied, and pushed onto the undo history, and
// the redo history is cleared. Once the journal has grown by the checkpoint
// interval since the last checkpoint, a checkpoint runs before returning.
//
// A CreateObject whose id is already registered is rejected with
// [ErrInvalidObject]. DeleteObject is not accepted: it is only produced by
// undo.
func (c *Canvas) LogAndApply(ctx context.Context, op Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return err
	}

	return c.logAndApply(ctx, op)
}

func (c *Canvas) logAndApply(ctx context.Context, op Op) error {
	switch o := op.(type) {
	case SetCell:
		old, err := c.cell(ctx, o.X, o.Y)
		if err != nil {
			return err
		}

		o.Old = &old
		op = o
	case CreateObject:
		obj, err := normalizeObject(o.Object)
		if err != nil {
			return err
		}

		id := obj.ObjectID()
		if _, exists := c.objects[id]; exists {
			return wrap(fmt.Errorf("%w: id already exists", ErrInvalidObject), withObject(id))
		}

		err = obj.Validate()
		if err != nil {
			return wrap(err, withObject(id))
		}

		o.Object = obj

		if o.Prior == nil {
			o.Prior, err = c.capture(ctx, obj.Render())
			if err != nil {
				return err
			}
		}

		op = o
	case DeleteObject:
		return errors.New("log and apply: delete object is only produced by undo")
	default:
		return fmt.Errorf("log and apply: unsupported op %T", op)
	}

	seq, err := c.journal(ctx, originEdit, op)
	if err != nil {
		return err
	}

	c.undo.Push(op)
	c.redo.Clear()

	return c.maybeCheckpoint(ctx, seq)
}

// capture returns the current cells at every coordinate in cells.
func (c *Canvas) capture(ctx context.Context, cells []Placed) ([]Placed, error) {
	out := make([]Placed, 0, len(cells))

	for _, p := range cells {
		cur, err := c.cell(ctx, p.X, p.Y)
		if err != nil {
			return nil, err
		}

		out = append(out, At(p.X, p.Y, cur))
	}

	return out, nil
}

// journal appends op and then applies it. Chunks are loaded first so apply
// cannot fail after the entry is durable.
func (c *Canvas) journal(ctx context.Context, from origin, op Op) (uint64, error) {
	err := c.touch(ctx, op)
	if err != nil {
		return 0, err
	}

	data, err := encodeOp(from, op)
	if err != nil {
		return 0, err
	}

	seq, err := c.st.AppendJournal(ctx, c.now().Unix(), data)
	if err != nil {
		return 0, err
	}

	c.lastSeq = max(c.lastSeq, seq)

	err = c.apply(ctx, op)
	if err != nil {
		return seq, wrap(err, withSeq(seq))
	}

	return seq, nil
}

func (c *Canvas) maybeCheckpoint(ctx context.Context, seq uint64) error {
	if seq < c.marker || seq-c.marker < c.interval {
		return nil
	}

	err := c.checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("automatic checkpoint: %w", err)
	}

	return nil
}

// CreateObject registers obj, journals its creation, then journals one
// SetCell per rendered cell so the visual footprint is recorded cell by
// cell. An object without an id gets a fresh one.
//
// Undoing the trailing SetCell ops changes nothing visible; undoing the
// creation itself unregisters the object and restores the cells it covered.
func (c *Canvas) CreateObject(ctx context.Context, obj Object) (Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return nil, err
	}

	obj, err = normalizeObject(obj)
	if err != nil {
		return nil, err
	}

	id := obj.ObjectID()

	err = c.logAndApply(ctx, CreateObject{Object: obj})
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}

	for _, p := range obj.Render() {
		err = c.logAndApply(ctx, SetCell{X: p.X, Y: p.Y, New: p.Cell})
		if err != nil {
			return nil, wrap(fmt.Errorf("create object: %w", err), withObject(id))
		}
	}

	return obj, nil
}

// Undo reverts the newest entry of the undo history. The inverse op is
// journaled with an undo origin, so the undo survives a reload. Returns
// false when there is nothing to undo.
func (c *Canvas) Undo(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return false, err
	}

	op, ok := c.undo.Pop()
	if !ok {
		return false, nil
	}

	seq, err := c.journal(ctx, originUndo, inverse(op))
	if err != nil {
		if seq == 0 {
			c.undo.Push(op)
		}

		return false, fmt.Errorf("undo: %w", err)
	}

	c.redo.Push(op)

	return true, c.maybeCheckpoint(ctx, seq)
}

// Redo re-applies the newest undone op. Returns false when there is nothing
// to redo.
func (c *Canvas) Redo(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return false, err
	}

	op, ok := c.redo.Pop()
	if !ok {
		return false, nil
	}

	seq, err := c.journal(ctx, originRedo, op)
	if err != nil {
		if seq == 0 {
			c.redo.Push(op)
		}

		return false, fmt.Errorf("redo: %w", err)
	}

	c.undo.Push(op)

	return true, c.maybeCheckpoint(ctx, seq)
}

// CanUndo reports whether Undo has anything to revert.
func (c *Canvas) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == StateOpen && c.undo.Len() > 0
}

// CanRedo reports whether Redo has anything to re-apply.
func (c *Canvas) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == StateOpen && c.redo.Len() > 0
}

// Objects returns the registered objects ordered by id.
func (c *Canvas) Objects() ([]Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return nil, err
	}

	out := make([]Object, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, obj)
	}

	sortObjects(out)

	return out, nil
}

// Object returns the object with the given id, or an error wrapping
// [ErrObjectNotFound].
func (c *Canvas) Object(id string) (Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return nil, err
	}

	obj, ok := c.objects[id]
	if !ok {
		return nil, wrap(ErrObjectNotFound, withObject(id))
	}

	return obj, nil
}

// Stats is a snapshot of engine bookkeeping.
type Stats struct {
	State         State
	CheckpointSeq uint64
	LastSeq       uint64
	CachedChunks  int
	DirtyChunks   int
	Objects       int
	DirtyObjects  int
	UndoDepth     int
	RedoDepth     int
}

// Stats returns a snapshot of engine bookkeeping. It works in any state.
func (c *Canvas) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		State:         c.state,
		CheckpointSeq: c.marker,
		LastSeq:       c.lastSeq,
		CachedChunks:  len(c.chunks),
		Objects:       len(c.objects),
		DirtyObjects:  len(c.dirtyObjects),
		UndoDepth:     c.undo.Len(),
		RedoDepth:     c.redo.Len(),
	}

	for _, ch := range c.chunks {
		if ch.Dirty() {
			s.DirtyChunks++
		}
	}

	return s
}

func (c *Canvas) warn(err error, msg string) {
	c.log.Warn().Err(err).Msg(msg)
}
