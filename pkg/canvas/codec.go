package canvas

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// chunkFormatVersion is written into every encoded chunk.
const chunkFormatVersion = 2

// Encoders and decoders are safe for concurrent EncodeAll/DecodeAll calls, so
// one of each serves the whole process.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
)

func compress(raw []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2+16)), nil
}

// decompress undoes compress. Payloads written by older versions may be zlib
// compressed or not compressed at all; anything neither codec accepts is
// returned as is with fellBack set.
func decompress(data []byte) (out []byte, fellBack bool, err error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, false, fmt.Errorf("create zstd decoder: %w", err)
	}

	out, zErr := dec.DecodeAll(data, nil)
	if zErr == nil {
		return out, false, nil
	}

	zr, zlErr := zlib.NewReader(bytes.NewReader(data))
	if zlErr == nil {
		out, zlErr = io.ReadAll(zr)
		_ = zr.Close()

		if zlErr == nil {
			return out, false, nil
		}
	}

	return data, true, nil
}

type chunkRecord struct {
	Version int      `msgpack:"v"`
	Cells   []Placed `msgpack:"cells"`
}

// encodeChunk serialises every non-blank cell of c, attributes included.
func encodeChunk(c *Chunk) ([]byte, error) {
	raw, err := msgpack.Marshal(chunkRecord{Version: chunkFormatVersion, Cells: c.Entries()})
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}

	return compress(raw)
}

// decodeChunk rebuilds a clean chunk from a payload. It accepts the current
// layout and the older character-only layout {"chars": {[lx, ly]: ch}}.
func decodeChunk(coord ChunkCoord, data []byte) (*Chunk, bool, error) {
	raw, fellBack, err := decompress(data)
	if err != nil {
		return nil, false, err
	}

	cells, err := decodeChunkCells(raw)
	if err != nil {
		return nil, fellBack, fmt.Errorf("decode chunk: %w: %w", ErrCorruptPayload, err)
	}

	chunk := NewChunk(coord)

	for _, p := range cells {
		if p.X < 0 || p.X >= ChunkSize || p.Y < 0 || p.Y >= ChunkSize {
			return nil, fellBack, fmt.Errorf("decode chunk: %w: local offset (%d,%d) out of range", ErrCorruptPayload, p.X, p.Y)
		}

		chunk.Set(p.X, p.Y, p.Cell)
	}

	chunk.markClean()

	return chunk, fellBack, nil
}

func decodeChunkCells(raw []byte) ([]Placed, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))

	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, errors.New("chunk record is nil")
	}

	var cells []Placed

	for range n {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}

		switch key {
		case "cells":
			var current []Placed

			err = dec.Decode(&current)
			cells = append(cells, current...)
		case "chars":
			var legacy []Placed

			legacy, err = decodeLegacyChars(dec)
			cells = append(cells, legacy...)
		default:
			err = dec.Skip()
		}

		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
	}

	return cells, nil
}

func decodeLegacyChars(dec *msgpack.Decoder) ([]Placed, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}

	out := make([]Placed, 0, max(n, 0))

	for range n {
		klen, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}

		if klen != 2 {
			return nil, fmt.Errorf("offset key has %d elements, want 2", klen)
		}

		lx, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}

		ly, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}

		ch, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}

		if ch == "" {
			return nil, fmt.Errorf("empty character at (%d,%d)", lx, ly)
		}

		out = append(out, At(lx, ly, Char([]rune(ch)[0])))
	}

	return out, nil
}

// encodeObject returns the compressed record payload for obj.
func encodeObject(obj Object) ([]byte, error) {
	raw, err := msgpack.Marshal(obj.Record())
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}

	return compress(raw)
}

// decodeObject rebuilds an object from its stored type tag and payload. The
// stored tag wins over the tag inside the record.
func decodeObject(typ string, data []byte) (Object, bool, error) {
	raw, fellBack, err := decompress(data)
	if err != nil {
		return nil, false, err
	}

	var rec Record

	err = msgpack.Unmarshal(raw, &rec)
	if err != nil {
		return nil, fellBack, fmt.Errorf("decode object: %w: %w", ErrCorruptPayload, err)
	}

	if typ != "" {
		rec.Type = Kind(typ)
	}

	obj, err := FromRecord(rec)
	if err != nil {
		return nil, fellBack, err
	}

	return obj, fellBack, nil
}
