// Package metric captures per-element counters. Values are published
// with expvar and as prometheus metrics.
package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const elementsLabel = "tensorsink.elements"

const (
	// BufferCounter measures number of received buffers.
	BufferCounter = "Buffers"
	// DropCounter measures number of buffers dropped as late.
	DropCounter = "Dropped"
	// NotificationCounter measures number of emitted notifications.
	NotificationCounter = "Notifications"
	// LatenessCounter holds the lateness of the last buffer.
	LatenessCounter = "Lateness"
)

var (
	elements = metrics{
		m: make(map[string]*Measure),
	}

	counters = []string{
		BufferCounter,
		DropCounter,
		NotificationCounter,
		LatenessCounter,
	}

	buffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensorsink_buffers_total",
			Help: "Number of buffers received by the element",
		},
		[]string{"element"},
	)
	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensorsink_dropped_total",
			Help: "Number of late buffers dropped by the element",
		},
		[]string{"element"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensorsink_notifications_total",
			Help: "Number of notifications emitted, by channel",
		},
		[]string{"element", "channel"},
	)
	latenessSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tensorsink_lateness_seconds",
			Help:    "Distribution of buffer lateness against the pipeline clock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms -> 2s
		},
		[]string{"element"},
	)
)

// Get metrics values for provided element name.
func Get(element string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(element, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// GetAll returns counters for all measured elements.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	elements.Lock()
	defer elements.Unlock()
	for element := range elements.m {
		m[element] = Get(element)
	}
	return m
}

// Measure captures counters of a single element. Nil Measure discards
// all values.
type Measure struct {
	buffers       *expvar.Int
	dropped       *expvar.Int
	notifications *expvar.Int
	lateness      *duration

	buffersTotal       prometheus.Counter
	droppedTotal       prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	latenessSeconds    prometheus.Observer
}

// Meter returns the measure of the element. Elements with the same name
// share counters.
func Meter(element string) *Measure {
	return elements.get(element)
}

// Buffer counts received buffer.
func (m *Measure) Buffer() {
	if m == nil {
		return
	}
	m.buffers.Add(1)
	m.buffersTotal.Inc()
}

// Drop counts dropped buffer.
func (m *Measure) Drop() {
	if m == nil {
		return
	}
	m.dropped.Add(1)
	m.droppedTotal.Inc()
}

// Notify counts notification emitted on the channel.
func (m *Measure) Notify(channel string) {
	if m == nil {
		return
	}
	m.notifications.Add(1)
	m.notificationsTotal.WithLabelValues(channel).Inc()
}

// Lateness records lateness of the buffer.
func (m *Measure) Lateness(d time.Duration) {
	if m == nil {
		return
	}
	m.lateness.set(d)
	if d > 0 {
		m.latenessSeconds.Observe(d.Seconds())
	}
}

type metrics struct {
	sync.Mutex
	m map[string]*Measure
}

func (m *metrics) get(element string) *Measure {
	m.Lock()
	defer m.Unlock()
	if measure, ok := m.m[element]; ok {
		// return existing measure if available
		return measure
	}
	measure := newMeasure(element)
	m.m[element] = measure
	return measure
}

func newMeasure(element string) *Measure {
	labels := prometheus.Labels{"element": element}
	m := Measure{
		buffers:            expvar.NewInt(key(element, BufferCounter)),
		dropped:            expvar.NewInt(key(element, DropCounter)),
		notifications:      expvar.NewInt(key(element, NotificationCounter)),
		lateness:           &duration{},
		buffersTotal:       buffersTotal.With(labels),
		droppedTotal:       droppedTotal.With(labels),
		notificationsTotal: notificationsTotal.MustCurryWith(labels),
		latenessSeconds:    latenessSeconds.With(labels),
	}
	expvar.Publish(key(element, LatenessCounter), m.lateness)
	return &m
}

func key(element, counter string) string {
	return fmt.Sprintf("%s.%s.%s", elementsLabel, element, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
