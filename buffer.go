package tensorsink

import "time"

// ClockTimeNone marks undefined timestamp.
const ClockTimeNone time.Duration = -1

// Buffer is a unit of stream data. Timestamp is a presentation time in
// stream running time. Sink doesn't retain buffers, so observers must
// copy memories if they need them after the callback returns.
type Buffer struct {
	Timestamp time.Duration
	Duration  time.Duration
	Offset    uint64
	Memories  [][]byte
}

// Size returns total size of buffer memories.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	var size int
	for _, m := range b.Memories {
		size += len(m)
	}
	return size
}

// HasTimestamp returns true if buffer has valid timestamp.
func (b *Buffer) HasTimestamp() bool {
	return b != nil && b.Timestamp >= 0
}
