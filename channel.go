package tensorsink

// Channel identifies a notification channel of the element.
type Channel int

// Notification channels.
const (
	// NewData is emitted for rendered buffers.
	NewData Channel = iota
	// StreamStart is emitted once when stream starts.
	StreamStart
	// EndOfStream is emitted once when stream ends.
	EndOfStream

	numChannels
)

var channelNames = [numChannels]string{
	NewData:     "new-data",
	StreamStart: "stream-start",
	EndOfStream: "eos",
}

// ParseChannel returns channel by name.
func ParseChannel(name string) (Channel, bool) {
	for c, n := range channelNames {
		if n == name {
			return Channel(c), true
		}
	}
	return 0, false
}

func (c Channel) String() string {
	if c < 0 || c >= numChannels {
		return "unknown"
	}
	return channelNames[c]
}

// Handle identifies connected observer. Zero value is invalid.
type Handle uint64

// InvalidHandle is returned when observer cannot be connected.
const InvalidHandle Handle = 0

// Callback is called by the element on notification. Buffer is only
// provided for new-data channel and is nil otherwise.
type Callback func(b *Buffer)

type binding struct {
	handle   Handle
	callback Callback
}
