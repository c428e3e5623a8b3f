// Package canvas is the storage engine behind an infinite, sparse 2-D grid
// of characters.
//
// The grid is paged into square chunks of [ChunkSize] cells that are loaded
// lazily from a [store.Store] and cached for the lifetime of an open
// [Canvas]. Every interactive mutation goes through [Canvas.LogAndApply]: the
// operation is applied in memory, appended to the store's journal, and pushed
// onto a bounded undo history. [Canvas.Checkpoint] flushes dirty chunks and
// objects, records the highest journal sequence they reflect, and truncates
// the journal up to it. [Canvas.Load] rebuilds the same in-memory state from
// the last checkpoint plus the journal tail, using the exact apply path that
// live edits use.
//
// Objects ([Table], [Math], [PageFrame]) are persisted as records and also
// rendered into ordinary cells owned by the object's id.
//
// A Canvas is single-writer. Its methods are safe to call from multiple
// goroutines, but the store must not be opened by a second process; the
// backends enforce that with a file lock.
package canvas
