package metric_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/dudk/tensorsink/metric"
)

func TestMeter(t *testing.T) {
	// test cases
	var tests = []struct {
		element               string
		routines              int
		buffers               int
		expectedBuffers       string
		expectedDropped       string
		expectedNotifications string
	}{
		{
			element:               "meter_sink",
			routines:              2,
			buffers:               10,
			expectedBuffers:       "20",
			expectedDropped:       "10",
			expectedNotifications: "20",
		},
		{
			// same element accumulates
			element:               "meter_sink",
			routines:              2,
			buffers:               10,
			expectedBuffers:       "40",
			expectedDropped:       "20",
			expectedNotifications: "40",
		},
	}
	// function to test meter.
	testFn := func(m *metric.Measure, wg *sync.WaitGroup, buffers int) {
		for i := 0; i < buffers; i++ {
			m.Buffer()
			if i%2 == 0 {
				m.Drop()
			}
			m.Notify("new-data")
			m.Lateness(time.Millisecond)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		for i := 0; i < c.routines; i++ {
			go testFn(metric.Meter(c.element), wg, c.buffers)
		}
		// check if no data race.
		wg.Wait()
		values := metric.Get(c.element)
		assert.Equal(t, c.expectedBuffers, values[metric.BufferCounter])
		assert.Equal(t, c.expectedDropped, values[metric.DropCounter])
		assert.Equal(t, c.expectedNotifications, values[metric.NotificationCounter])
		assert.Equal(t, `"1ms"`, values[metric.LatenessCounter])
	}
	assert.Contains(t, metric.GetAll(), "meter_sink")
}

func TestNilMeasure(t *testing.T) {
	var m *metric.Measure
	assert.NotPanics(t, func() {
		m.Buffer()
		m.Drop()
		m.Notify("eos")
		m.Lateness(time.Second)
	})
}

func TestPrometheus(t *testing.T) {
	m := metric.Meter("prometheus_sink")
	m.Notify("eos")
	m.Notify("eos")
	m.Notify("new-data")

	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)
	values := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "tensorsink_notifications_total" {
			continue
		}
		for _, s := range f.GetMetric() {
			labels := make(map[string]string)
			for _, l := range s.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["element"] == "prometheus_sink" {
				values[labels["channel"]] = s.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"eos": 2, "new-data": 1}, values)
}
