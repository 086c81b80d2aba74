package tensorsink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/dudk/tensorsink/clock"
	"github.com/dudk/tensorsink/log"
	"github.com/dudk/tensorsink/metric"
)

// Result is the outcome of rendering a buffer.
type Result int

// Render results.
const (
	// Accepted means that buffer was processed. It doesn't imply that
	// new-data was emitted for it.
	Accepted Result = iota
	// Dropped means that buffer was too late and discarded.
	Dropped
	// Rejected means that element didn't take the buffer.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Stats is a snapshot of element counters.
type Stats struct {
	// Received counts every buffer taken by the element, including
	// dropped ones.
	Received int64
	// Dropped counts buffers dropped as late.
	Dropped int64
	// Emitted counts new-data notifications.
	Emitted int64
	// Position is the timestamp of the last received buffer.
	Position time.Duration
}

// Sink is a terminal pipeline element. It notifies observers about new
// buffers and stream boundaries.
//
// StreamStart, Render and EOS must be called from a single streaming
// goroutine. Other methods are safe for concurrent use.
type Sink struct {
	name  string
	log   logrus.FieldLogger
	clock clock.Clock
	meter *metric.Measure

	mu      sync.Mutex
	config  Config
	state   State
	err     error
	base    time.Duration // clock time when stream started
	unblock chan struct{} // closed on fault

	// rate gate, only accessed from streaming goroutine.
	lastEmit time.Duration
	emitted  bool

	observers sync.RWMutex
	bindings  [numChannels][]binding
	handles   Handle

	received int64
	dropped  int64
	emits    int64
	position int64
}

// New returns a new element in start state.
func New(options ...Option) *Sink {
	s := &Sink{
		name:    "tensor_sink_" + xid.New().String(),
		config:  DefaultConfig(),
		unblock: make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	s.log = log.Element(s.log, s.name)
	return s
}

// Name returns the element name.
func (s *Sink) Name() string {
	return s.name
}

// Set sets property value. Unknown properties are ignored.
func (s *Sink) Set(name string, value interface{}) error {
	s.mu.Lock()
	c := s.config
	if err := c.set(name, value); err != nil {
		s.mu.Unlock()
		return err
	}
	s.config = c
	s.mu.Unlock()
	if !c.Silent {
		v, ok := c.get(name)
		s.log.WithFields(logrus.Fields{
			"property": name,
			"value":    v,
			"known":    ok,
		}).Debug("set property")
	}
	return nil
}

// Get returns property value. False is returned if property is unknown.
// Values have canonical types regardless of what was passed to Set:
// render-rate and max-lateness are time.Duration, other properties are
// bool.
func (s *Sink) Get(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.get(name)
}

// Config returns a snapshot of element properties.
func (s *Sink) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// State returns current lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error element was faulted with.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns element counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Received: atomic.LoadInt64(&s.received),
		Dropped:  atomic.LoadInt64(&s.dropped),
		Emitted:  atomic.LoadInt64(&s.emits),
		Position: time.Duration(atomic.LoadInt64(&s.position)),
	}
}

// Connect binds callback to the channel. InvalidHandle is returned if
// channel is unknown or callback is nil.
func (s *Sink) Connect(channel string, cb Callback) Handle {
	c, ok := ParseChannel(channel)
	if !ok || cb == nil {
		if !s.Config().Silent {
			s.log.WithField("channel", channel).Debug("connect to unknown channel")
		}
		return InvalidHandle
	}
	return s.connect(c, cb)
}

// OnNewData binds callback to new-data channel.
func (s *Sink) OnNewData(fn func(*Buffer)) Handle {
	if fn == nil {
		return InvalidHandle
	}
	return s.connect(NewData, fn)
}

// OnStreamStart binds callback to stream-start channel.
func (s *Sink) OnStreamStart(fn func()) Handle {
	if fn == nil {
		return InvalidHandle
	}
	return s.connect(StreamStart, func(*Buffer) { fn() })
}

// OnEOS binds callback to eos channel.
func (s *Sink) OnEOS(fn func()) Handle {
	if fn == nil {
		return InvalidHandle
	}
	return s.connect(EndOfStream, func(*Buffer) { fn() })
}

func (s *Sink) connect(c Channel, cb Callback) Handle {
	s.observers.Lock()
	defer s.observers.Unlock()
	s.handles++
	s.bindings[c] = append(s.bindings[c], binding{handle: s.handles, callback: cb})
	return s.handles
}

// Disconnect removes callback bound with provided handle. False is
// returned if handle is not connected.
func (s *Sink) Disconnect(h Handle) bool {
	if h == InvalidHandle {
		return false
	}
	s.observers.Lock()
	defer s.observers.Unlock()
	for c := range s.bindings {
		for i, b := range s.bindings[c] {
			if b.handle != h {
				continue
			}
			// copy to not disturb emissions in progress
			bindings := make([]binding, 0, len(s.bindings[c])-1)
			bindings = append(bindings, s.bindings[c][:i]...)
			s.bindings[c] = append(bindings, s.bindings[c][i+1:]...)
			return true
		}
	}
	return false
}

// Start prepares element to receive the stream.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.state.transition(initialize)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// StreamStart starts the stream. Notification is emitted only once per
// element, consequent calls do nothing. True is returned if this call
// started the stream.
func (s *Sink) StreamStart() bool {
	s.mu.Lock()
	next, err := s.state.transition(start)
	if err != nil {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.base = s.clock.Now()
	c := s.config
	s.mu.Unlock()

	s.emitted = false
	if !c.Silent {
		s.log.WithField("base", s.base).Info("stream started")
	}
	if c.EmitSignal {
		s.emit(StreamStart, nil)
	}
	return true
}

// Render processes the buffer. Stream is started if it wasn't yet.
// ErrTerminated is returned after end of stream or fault, counters are
// not changed in that case.
func (s *Sink) Render(b *Buffer) (Result, error) {
	if b == nil {
		return Rejected, ErrInvalidValue
	}
	s.mu.Lock()
	if s.state == StateStart || s.state == StateInitialized {
		s.mu.Unlock()
		s.StreamStart()
		s.mu.Lock()
	}
	if s.state.Terminal() {
		state, silent := s.state, s.config.Silent
		s.mu.Unlock()
		if !silent {
			s.log.WithFields(logrus.Fields{
				"state":     state,
				"timestamp": b.Timestamp,
			}).Warn("buffer received in terminal state")
		}
		return Rejected, ErrTerminated
	}
	c, base, unblock := s.config, s.base, s.unblock
	s.mu.Unlock()

	atomic.AddInt64(&s.received, 1)
	s.meter.Buffer()

	var t time.Duration
	if b.HasTimestamp() {
		t = b.Timestamp
		atomic.StoreInt64(&s.position, int64(t))
		if c.Sync && !s.sync(c, base+t, unblock) {
			s.drop(c, b)
			return Dropped, nil
		}
	} else {
		t = s.clock.Now() - base
	}
	// fault could land while waiting for the clock.
	if s.faulted() {
		s.drop(c, b)
		return Dropped, nil
	}

	if !s.gate(c.RenderRate, t) {
		if !c.Silent {
			s.log.WithField("timestamp", t).Debug("buffer skipped by render rate")
		}
		return Accepted, nil
	}
	if c.EmitSignal {
		atomic.AddInt64(&s.emits, 1)
		s.emit(NewData, b)
	}
	if !c.Silent {
		s.log.WithFields(logrus.Fields{
			"timestamp": t,
			"size":      b.Size(),
		}).Debug("new data")
	}
	return Accepted, nil
}

// sync waits for buffer running time. False is returned if buffer must
// be dropped.
func (s *Sink) sync(c Config, at time.Duration, unblock <-chan struct{}) bool {
	if !s.clock.Wait(at, unblock) {
		return false
	}
	maxLateness, ok := c.lateness()
	if !ok {
		return true
	}
	lateness := s.clock.Now() - at
	s.meter.Lateness(lateness)
	return lateness <= maxLateness
}

func (s *Sink) drop(c Config, b *Buffer) {
	atomic.AddInt64(&s.dropped, 1)
	s.meter.Drop()
	if !c.Silent {
		s.log.WithField("timestamp", b.Timestamp).Info("late buffer dropped")
	}
}

// gate returns true if notification is allowed for the buffer with
// provided timestamp.
func (s *Sink) gate(rate, t time.Duration) bool {
	if rate == 0 {
		return true
	}
	if s.emitted && t-s.lastEmit < rate {
		return false
	}
	s.lastEmit, s.emitted = t, true
	return true
}

// EOS ends the stream. Notification is emitted only once, consequent
// calls and calls after fault do nothing.
func (s *Sink) EOS() {
	s.mu.Lock()
	next, err := s.state.transition(end)
	if err != nil {
		s.mu.Unlock()
		return
	}
	s.state = next
	c := s.config
	s.mu.Unlock()

	if !c.Silent {
		s.log.WithField("received", atomic.LoadInt64(&s.received)).Info("end of stream")
	}
	if c.EmitSignal {
		s.emit(EndOfStream, nil)
	}
}

// Fault is called when error or warning is reported in the pipeline.
// Element stops all notifications and rejects further buffers. Fault
// after end of stream or after another fault is ignored.
func (s *Sink) Fault(err error) {
	s.mu.Lock()
	next, terr := s.state.transition(fault)
	if terr != nil {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.err = err
	close(s.unblock)
	silent := s.config.Silent
	s.mu.Unlock()

	if !silent {
		s.log.WithError(err).Warn("pipeline fault")
	}
}

// emit calls observers of the channel in order of connection. Remaining
// observers are skipped once element is faulted.
func (s *Sink) emit(c Channel, b *Buffer) {
	s.observers.RLock()
	bindings := s.bindings[c]
	s.observers.RUnlock()
	s.meter.Notify(c.String())
	for _, binding := range bindings {
		if s.faulted() {
			return
		}
		binding.callback(b)
	}
}

func (s *Sink) faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateErrorOrWarning
}
