// Package wsfeed forwards tensor sink notifications to websocket clients.
//
// Every notification is sent as a JSON text frame. For new-data it is
// followed by one binary frame per buffer memory. Each client has a
// bounded queue, events for a client which can't keep up are dropped so
// the streaming goroutine is never blocked.
package wsfeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dudk/tensorsink"
	"github.com/dudk/tensorsink/log"
)

const (
	defaultQueueSize = 16
	writeWait        = time.Second
)

// Event describes a notification.
type Event struct {
	Event     string        `json:"event"`
	Element   string        `json:"element"`
	Timestamp time.Duration `json:"timestamp,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Offset    uint64        `json:"offset,omitempty"`
	Size      int           `json:"size,omitempty"`
	Memories  int           `json:"memories,omitempty"`
}

type frame struct {
	messageType int
	data        []byte
}

type client struct {
	conn *websocket.Conn
	send chan []frame
}

// Feed is an http.Handler which upgrades connections to websocket and
// broadcasts sink notifications to them.
type Feed struct {
	upgrader  websocket.Upgrader
	log       logrus.FieldLogger
	queueSize int
	dropped   int64

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	writers sync.WaitGroup
}

// Option provides a way to set functional parameters to feed.
type Option func(*Feed)

// WithQueueSize sets number of events queued per client.
func WithQueueSize(n int) Option {
	return func(f *Feed) {
		f.queueSize = n
	}
}

// WithLogger sets logger to feed.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Feed) {
		f.log = l
	}
}

// New returns a new feed without clients.
func New(options ...Option) *Feed {
	f := &Feed{
		queueSize: defaultQueueSize,
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, option := range options {
		option(f)
	}
	if f.log == nil {
		f.log = log.GetLogger()
	}
	return f
}

// Attach connects feed to all channels of the sink.
func (f *Feed) Attach(s *tensorsink.Sink) []tensorsink.Handle {
	name := s.Name()
	return []tensorsink.Handle{
		s.OnStreamStart(func() {
			f.broadcast(Event{Event: tensorsink.StreamStart.String(), Element: name}, nil)
		}),
		s.OnNewData(func(b *tensorsink.Buffer) {
			f.broadcast(Event{
				Event:     tensorsink.NewData.String(),
				Element:   name,
				Timestamp: b.Timestamp,
				Duration:  b.Duration,
				Offset:    b.Offset,
				Size:      b.Size(),
				Memories:  len(b.Memories),
			}, b.Memories)
		}),
		s.OnEOS(func() {
			f.broadcast(Event{Event: tensorsink.EndOfStream.String(), Element: name}, nil)
		}),
	}
}

// ServeHTTP upgrades the connection and keeps it until client leaves or
// feed is closed.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		http.Error(w, "feed is closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).Debug("upgrade failed")
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []frame, f.queueSize),
	}
	if !f.register(c) {
		conn.Close()
		return
	}
	f.log.WithField("remote", r.RemoteAddr).Debug("client connected")

	// clients don't send anything, read only to notice when they leave.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.unregister(c)
	f.log.WithField("remote", r.RemoteAddr).Debug("client disconnected")
}

func (f *Feed) register(c *client) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[c] = struct{}{}
	f.writers.Add(1)
	go f.write(c)
	return true
}

func (f *Feed) unregister(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
}

// write sends queued frames until queue is closed.
func (f *Feed) write(c *client) {
	defer f.writers.Done()
	defer c.conn.Close()
	for frames := range c.send {
		for _, fr := range frames {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(fr.messageType, fr.data); err != nil {
				f.log.WithError(err).Debug("write failed")
				// drain queue until reader notices closed connection.
				c.conn.Close()
				for range c.send {
				}
				return
			}
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (f *Feed) broadcast(e Event, memories [][]byte) {
	data, err := json.Marshal(e)
	if err != nil {
		f.log.WithError(err).Warn("failed to marshal event")
		return
	}
	frames := make([]frame, 0, 1+len(memories))
	frames = append(frames, frame{messageType: websocket.TextMessage, data: data})
	for _, m := range memories {
		// buffer must not be retained after notification.
		frames = append(frames, frame{
			messageType: websocket.BinaryMessage,
			data:        append([]byte(nil), m...),
		})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- frames:
		default:
			atomic.AddInt64(&f.dropped, 1)
		}
	}
}

// Clients returns number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Dropped returns number of events dropped for slow clients.
func (f *Feed) Dropped() int64 {
	return atomic.LoadInt64(&f.dropped)
}

// Close disconnects all clients and waits for their queues to flush.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	f.writers.Wait()
	return nil
}
