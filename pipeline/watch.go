package pipeline

import (
	"context"
)

// Status is the terminal status of the stream observed on the bus.
type Status int

// Stream statuses.
const (
	// StatusInit means that no terminal message was received.
	StatusInit Status = iota
	// StatusStream means that stream started but didn't end.
	StatusStream
	// StatusError means that error or warning was received.
	StatusError
	// StatusEOS means that stream ended.
	StatusEOS
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusStream:
		return "stream"
	case StatusError:
		return "error"
	case StatusEOS:
		return "eos"
	}
	return "unknown"
}

// Watch pops bus messages until end of stream or first error or warning.
// Optional handler is called for every message. Returned error is the
// error of the message, or context error if it's done first.
func Watch(ctx context.Context, bus *Bus, handler func(Message)) (Status, error) {
	status := StatusInit
	for {
		m, ok := bus.Pop(ctx)
		if !ok {
			return status, ctx.Err()
		}
		if handler != nil {
			handler(m)
		}
		switch m.Type {
		case MessageStreamStart:
			status = StatusStream
		case MessageEOS:
			return StatusEOS, nil
		case MessageError, MessageWarning:
			return StatusError, m.Err
		}
	}
}
