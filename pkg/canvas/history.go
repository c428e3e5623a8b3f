package canvas

// history is a fixed-capacity stack. Pushing onto a full history silently
// evicts the oldest entry.
type history struct {
	buf   []Op
	start int // index of the oldest entry
	n     int
}

func newHistory(capacity int) *history {
	return &history{buf: make([]Op, max(capacity, 0))}
}

func (h *history) Len() int { return h.n }

func (h *history) Cap() int { return len(h.buf) }

func (h *history) Push(op Op) {
	if len(h.buf) == 0 {
		return
	}

	if h.n == len(h.buf) {
		h.buf[h.start] = op
		h.start = (h.start + 1) % len(h.buf)

		return
	}

	h.buf[(h.start+h.n)%len(h.buf)] = op
	h.n++
}

// Pop removes and returns the newest entry.
func (h *history) Pop() (Op, bool) {
	if h.n == 0 {
		return nil, false
	}

	i := (h.start + h.n - 1) % len(h.buf)
	op := h.buf[i]
	h.buf[i] = nil
	h.n--

	return op, true
}

func (h *history) Clear() {
	clear(h.buf)
	h.start, h.n = 0, 0
}

// Ops returns the entries oldest first.
func (h *history) Ops() []Op {
	out := make([]Op, 0, h.n)
	for i := range h.n {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}

	return out
}
