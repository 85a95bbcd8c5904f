package chat

import "github.com/zhouzirui/research-agent/internal/model/chat"

// history is a fixed-capacity ring of messages. Once full, each push
// overwrites the oldest entry.
type history struct {
	buf   []chat.Message
	start int
	size  int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]chat.Message, capacity)}
}

func (h *history) push(msg chat.Message) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = msg
		h.size++
		return
	}
	h.buf[h.start] = msg
	h.start = (h.start + 1) % len(h.buf)
}

// snapshot returns the messages oldest first.
func (h *history) snapshot() []chat.Message {
	out := make([]chat.Message, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *history) reset() {
	clear(h.buf)
	h.start = 0
	h.size = 0
}

func (h *history) len() int {
	return h.size
}

func (h *history) capacity() int {
	return len(h.buf)
}
