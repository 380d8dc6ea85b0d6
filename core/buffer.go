package core

import (
	"fmt"

	"github.com/signalsfoundry/dtn-simulator/model"
)

// MessageBuffer is a bounded, insertion-ordered store of messages keyed
// by id. Occupancy is the sum of the held message sizes.
type MessageBuffer struct {
	capacity int
	used     int

	order    []string
	messages map[string]*model.Message
}

// NewMessageBuffer creates an empty buffer with the given byte capacity.
func NewMessageBuffer(capacity int) *MessageBuffer {
	return &MessageBuffer{
		capacity: capacity,
		messages: make(map[string]*model.Message),
	}
}

// Capacity returns the configured size in bytes.
func (b *MessageBuffer) Capacity() int { return b.capacity }

// Used returns the bytes occupied by held messages.
func (b *MessageBuffer) Used() int { return b.used }

// Free returns capacity minus occupancy. It can be negative for the
// remainder of a tick in which a transfer completed into a full buffer.
func (b *MessageBuffer) Free() int { return b.capacity - b.used }

// Len returns the number of held messages.
func (b *MessageBuffer) Len() int { return len(b.order) }

// Has reports whether a message with id is held.
func (b *MessageBuffer) Has(id string) bool {
	_, ok := b.messages[id]
	return ok
}

// Get returns the held message with id, or nil.
func (b *MessageBuffer) Get(id string) *model.Message {
	return b.messages[id]
}

// Messages returns the held messages in insertion order. The slice is a
// snapshot; the messages are shared.
func (b *MessageBuffer) Messages() []*model.Message {
	out := make([]*model.Message, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.messages[id])
	}
	return out
}

// Add stores m without any eviction.
func (b *MessageBuffer) Add(m *model.Message) error {
	if _, exists := b.messages[m.ID]; exists {
		return fmt.Errorf("%w: %q", ErrMessageExists, m.ID)
	}
	b.messages[m.ID] = m
	b.order = append(b.order, m.ID)
	b.used += m.Size
	return nil
}

// Remove deletes the message with id and returns it, or nil if absent.
func (b *MessageBuffer) Remove(id string) *model.Message {
	m, ok := b.messages[id]
	if !ok {
		return nil
	}
	delete(b.messages, id)
	for i, held := range b.order {
		if held == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.used -= m.Size
	return m
}

// MakeRoom evicts messages, oldest receive time first, until at least
// size bytes are free. Messages for which busy returns true are never
// evicted. Each eviction is passed to evict after removal. It returns
// false when size exceeds the capacity or when nothing more can be
// evicted and space is still short.
func (b *MessageBuffer) MakeRoom(size int, busy func(id string) bool, evict func(*model.Message)) bool {
	if size > b.capacity {
		return false
	}
	for b.Free() < size {
		oldest := b.oldest(busy)
		if oldest == nil {
			return false
		}
		b.Remove(oldest.ID)
		if evict != nil {
			evict(oldest)
		}
	}
	return true
}

// TryAdmit makes room for m and stores it.
func (b *MessageBuffer) TryAdmit(m *model.Message, busy func(id string) bool, evict func(*model.Message)) bool {
	if b.Has(m.ID) {
		return false
	}
	if !b.MakeRoom(m.Size, busy, evict) {
		return false
	}
	return b.Add(m) == nil
}

// EvictExpired removes every message whose TTL is spent at now, except
// those for which keep returns true, and returns the removed messages.
func (b *MessageBuffer) EvictExpired(now float64, keep func(*model.Message) bool) []*model.Message {
	var expired []*model.Message
	for _, m := range b.Messages() {
		if !m.Expired(now) {
			continue
		}
		if keep != nil && keep(m) {
			continue
		}
		b.Remove(m.ID)
		expired = append(expired, m)
	}
	return expired
}

func (b *MessageBuffer) oldest(busy func(id string) bool) *model.Message {
	var oldest *model.Message
	for _, id := range b.order {
		m := b.messages[id]
		if busy != nil && busy(id) {
			continue
		}
		if oldest == nil || m.ReceivedAt < oldest.ReceivedAt {
			oldest = m
		}
	}
	return oldest
}
