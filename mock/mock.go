// Package mock provides mocks for pipeline components and allows to execute integration tests.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dudk/tensorsink"
)

// Source produces Limit buffers with timestamps spaced by Interval.
type Source struct {
	counter
	Limit int
	// Interval between buffer timestamps.
	Interval time.Duration
	// Size of buffer memory in bytes.
	Size  int
	Value byte
	// Realtime makes source produce buffer i at start + i*Interval of
	// wall time, where start is the time of the first buffer.
	Realtime bool
	// ErrorOnCall is returned after ErrorAfter buffers.
	ErrorOnCall error
	ErrorAfter  int

	start time.Time
}

// Next returns next buffer. io.EOF is returned when limit is reached.
func (m *Source) Next(ctx context.Context) (*tensorsink.Buffer, error) {
	if m.ErrorOnCall != nil && m.buffers >= m.ErrorAfter {
		return nil, m.ErrorOnCall
	}
	if m.buffers >= m.Limit {
		return nil, io.EOF
	}
	if m.Realtime {
		if m.buffers == 0 {
			m.start = time.Now()
		}
		deadline := m.start.Add(time.Duration(m.buffers) * m.Interval)
		t := time.NewTimer(time.Until(deadline))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
	data := make([]byte, m.Size)
	for i := range data {
		data[i] = m.Value
	}
	b := &tensorsink.Buffer{
		Timestamp: time.Duration(m.buffers) * m.Interval,
		Duration:  m.Interval,
		Offset:    uint64(m.buffers),
		Memories:  [][]byte{data},
	}
	m.advance(m.Size)
	return b, nil
}

// Reset resets source counters.
func (m *Source) Reset() {
	m.reset()
	m.start = time.Time{}
}

// Observer records notifications of the element.
type Observer struct {
	mu         sync.Mutex
	events     []tensorsink.Channel
	timestamps []time.Duration
	received   int
	started    bool
	ended      bool
}

// Attach connects observer to all channels of the element.
func (o *Observer) Attach(s *tensorsink.Sink) []tensorsink.Handle {
	return []tensorsink.Handle{
		s.Connect(tensorsink.NewData.String(), o.NewData),
		s.Connect(tensorsink.StreamStart.String(), o.StreamStart),
		s.Connect(tensorsink.EndOfStream.String(), o.EOS),
	}
}

// NewData records new-data notification.
func (o *Observer) NewData(b *tensorsink.Buffer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received++
	o.timestamps = append(o.timestamps, b.Timestamp)
	o.events = append(o.events, tensorsink.NewData)
}

// StreamStart records stream-start notification.
func (o *Observer) StreamStart(*tensorsink.Buffer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
	o.events = append(o.events, tensorsink.StreamStart)
}

// EOS records eos notification.
func (o *Observer) EOS(*tensorsink.Buffer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = true
	o.events = append(o.events, tensorsink.EndOfStream)
}

// Received returns number of new-data notifications.
func (o *Observer) Received() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.received
}

// Started returns true if stream-start was received.
func (o *Observer) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// Ended returns true if eos was received.
func (o *Observer) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended
}

// Events returns all notifications in order.
func (o *Observer) Events() []tensorsink.Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]tensorsink.Channel(nil), o.events...)
}

// Timestamps returns timestamps of notified buffers.
func (o *Observer) Timestamps() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.timestamps...)
}

// Count returns number of channel notifications.
func (o *Observer) Count(c tensorsink.Channel) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	var n int
	for _, e := range o.events {
		if e == c {
			n++
		}
	}
	return n
}

// reset resets counter's metrics.
func (c *counter) reset() {
	c.buffers, c.bytes = 0, 0
}

// counter counts buffers and bytes.
type counter struct {
	buffers int
	bytes   int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.buffers++
	c.bytes = c.bytes + size
}

// Count returns buffers and bytes metrics.
func (c *counter) Count() (int, int) {
	return c.buffers, c.bytes
}
