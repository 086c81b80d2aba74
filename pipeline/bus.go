package pipeline

import (
	"context"
	"sync"
)

// MessageType identifies the type of bus message.
type MessageType int

// Types of bus messages.
const (
	MessageStreamStart MessageType = iota
	MessageEOS
	MessageError
	MessageWarning
)

func (t MessageType) String() string {
	switch t {
	case MessageStreamStart:
		return "stream-start"
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	}
	return "unknown"
}

// Message is posted on the bus by pipeline elements.
type Message struct {
	Type   MessageType
	Source string
	Err    error
}

// SyncHandler is called in the goroutine which posts the message, before
// message is queued.
type SyncHandler func(Message)

// Bus delivers pipeline messages to the application. Posting never
// blocks.
type Bus struct {
	mu       sync.Mutex
	queue    []Message
	handlers []SyncHandler
	closed   bool
	notify   chan struct{}
}

// NewBus returns a new empty bus.
func NewBus() *Bus {
	return &Bus{
		notify: make(chan struct{}, 1),
	}
}

// AddSyncHandler adds handler for all posted messages.
func (b *Bus) AddSyncHandler(h SyncHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Post puts message on the bus. False is returned if bus is closed.
func (b *Bus) Post(m Message) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	handlers := b.handlers
	b.mu.Unlock()

	for _, h := range handlers {
		h(m)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.queue = append(b.queue, m)
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop returns the next message. It blocks until message is posted,
// context is done or bus is closed.
func (b *Bus) Pop(ctx context.Context) (Message, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			m := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return m, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return Message{}, false
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// Close closes the bus. Queued messages can still be popped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}
