package tensorsink

import (
	"github.com/sirupsen/logrus"

	"github.com/dudk/tensorsink/clock"
	"github.com/dudk/tensorsink/metric"
)

// Option provides a way to set functional parameters to element.
type Option func(*Sink)

// WithName sets name of the element. It's used in logs and metrics.
func WithName(name string) Option {
	return func(s *Sink) {
		s.name = name
	}
}

// WithLogger sets logger to element. If this option is not provided,
// logger from log package is used. Logs are only written if element's
// silent property is false.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Sink) {
		s.log = l
	}
}

// WithClock sets pipeline clock. System clock is used by default.
func WithClock(c clock.Clock) Option {
	return func(s *Sink) {
		s.clock = c
	}
}

// WithMetric sets measure to capture element counters.
func WithMetric(m *metric.Measure) Option {
	return func(s *Sink) {
		s.meter = m
	}
}

// WithConfig sets initial properties of element.
func WithConfig(c Config) Option {
	return func(s *Sink) {
		if c.RenderRate < 0 {
			c.RenderRate = 0
		}
		if c.MaxLateness < 0 {
			c.MaxLateness = LatenessUnlimited
		}
		s.config = c
	}
}
