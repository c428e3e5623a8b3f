package canvas

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Checkpoint flushes dirty chunks and objects to the store, records the
// highest journal sequence they now reflect, and truncates the journal up to
// that sequence.
//
// Chunks that became empty are deleted rather than written. With nothing
// dirty and no journal growth since the last checkpoint it does nothing.
//
// The marker is written after the flush and the truncation follows the
// marker, so a crash at any point leaves a state that Load repairs by replay.
func (c *Canvas) Checkpoint(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.requireOpen()
	if err != nil {
		return err
	}

	return c.checkpoint(ctx)
}

func (c *Canvas) checkpoint(ctx context.Context) error {
	start := time.Now()

	lastSeq, err := c.st.LastJournalSeq(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	target := max(c.marker, lastSeq)

	var dirty []*Chunk

	for _, ch := range c.chunks {
		if ch.Dirty() {
			dirty = append(dirty, ch)
		}
	}

	if len(dirty) == 0 && len(c.dirtyObjects) == 0 && target == c.marker {
		return nil
	}

	slices.SortFunc(dirty, func(a, b *Chunk) int {
		return cmp.Or(cmp.Compare(a.coord.CY, b.coord.CY), cmp.Compare(a.coord.CX, b.coord.CX))
	})

	written, deleted := 0, 0

	for _, ch := range dirty {
		removed, err := c.flushChunk(ctx, ch)
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}

		if removed {
			deleted++
		} else {
			written++
		}
	}

	ids := make([]string, 0, len(c.dirtyObjects))
	for id := range c.dirtyObjects {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	for _, id := range ids {
		err = c.flushObject(ctx, id)
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}

	err = c.st.SetMeta(ctx, metaCheckpointSeq, []byte(strconv.FormatUint(target, 10)))
	if err != nil {
		return fmt.Errorf("checkpoint: write marker: %w", err)
	}

	c.marker = target
	c.lastSeq = max(c.lastSeq, target)

	err = c.st.TruncateJournalBefore(ctx, target)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	c.log.Info().
		Uint64("seq", target).
		Int("chunks_written", written).
		Int("chunks_deleted", deleted).
		Int("objects", len(ids)).
		Dur("took", time.Since(start)).
		Msg("checkpoint")

	return nil
}

// flushChunk persists ch and reports whether it was deleted because it holds
// no cells.
func (c *Canvas) flushChunk(ctx context.Context, ch *Chunk) (bool, error) {
	coord := ch.Coord()

	if ch.Len() == 0 {
		err := c.st.DeleteChunk(ctx, coord.CX, coord.CY)
		if err != nil {
			return false, wrap(err, withChunk(coord))
		}

		ch.markClean()

		return true, nil
	}

	data, err := encodeChunk(ch)
	if err != nil {
		return false, wrap(err, withChunk(coord))
	}

	err = c.st.PutChunk(ctx, coord.CX, coord.CY, data)
	if err != nil {
		return false, wrap(err, withChunk(coord))
	}

	ch.markClean()

	return false, nil
}

func (c *Canvas) flushObject(ctx context.Context, id string) error {
	obj, ok := c.objects[id]
	if !ok || !c.dirtyObjects[id] {
		err := c.st.DeleteObject(ctx, id)
		if err != nil {
			return wrap(err, withObject(id))
		}

		delete(c.dirtyObjects, id)

		return nil
	}

	data, err := encodeObject(obj)
	if err != nil {
		return wrap(err, withObject(id))
	}

	err = c.st.PutObject(ctx, id, string(obj.Kind()), data)
	if err != nil {
		return wrap(err, withObject(id))
	}

	delete(c.dirtyObjects, id)

	return nil
}
