package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/NarekCodes/global-chat/internal/protocol"
)

// History is the room's bounded message log: append-only up to limit, after
// which the oldest entry is evicted.
type History struct {
	limit int
	msgs  []protocol.ChatMessage
}

func NewHistory(limit int) *History {
	return &History{limit: limit}
}

func (h *History) Append(m protocol.ChatMessage) {
	h.msgs = append(h.msgs, m)
	if len(h.msgs) > h.limit {
		h.msgs = h.msgs[1:]
	}
}

func (h *History) Find(id string) (protocol.ChatMessage, bool) {
	for _, m := range h.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return protocol.ChatMessage{}, false
}

func (h *History) Delete(id string) bool {
	for i, m := range h.msgs {
		if m.ID == id {
			h.msgs = append(h.msgs[:i], h.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// All returns a copy so callers cannot mutate the log out from under the room.
func (h *History) All() []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *History) Len() int { return len(h.msgs) }

func newChatMessage(author, text, kind string, secret bool) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      text,
		Kind:      kind,
		Timestamp: time.Now().Format(time.TimeOnly),
		Secret:    secret,
	}
}
