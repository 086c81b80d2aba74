package tensorsink

import (
	"strconv"
	"time"
)

// Names of element properties.
const (
	PropRenderRate  = "render-rate"
	PropEmitSignal  = "emit-signal"
	PropSilent      = "silent"
	PropSync        = "sync"
	PropMaxLateness = "max-lateness"
	PropQoS         = "qos"
)

// LatenessUnlimited disables lateness-based drops.
const LatenessUnlimited time.Duration = -1

// DefaultMaxLateness is the default lateness tolerated before buffer is
// dropped.
const DefaultMaxLateness = 30 * time.Millisecond

// Properties lists names of all element properties.
var Properties = []string{
	PropRenderRate,
	PropEmitSignal,
	PropSilent,
	PropSync,
	PropMaxLateness,
	PropQoS,
}

// Config holds element properties.
type Config struct {
	// RenderRate is a minimal interval between two new-data
	// notifications. Zero means every buffer is notified.
	RenderRate time.Duration
	// EmitSignal enables all notifications.
	EmitSignal bool
	// Silent suppresses diagnostic logging.
	Silent bool
	// Sync paces buffers to the pipeline clock.
	Sync bool
	// MaxLateness is the maximum lateness of the buffer before it's
	// dropped. Only used when Sync and QoS are enabled.
	MaxLateness time.Duration
	// QoS enables lateness-based dropping.
	QoS bool
}

// DefaultConfig returns default element properties.
func DefaultConfig() Config {
	return Config{
		RenderRate:  0,
		EmitSignal:  true,
		Silent:      true,
		Sync:        true,
		MaxLateness: DefaultMaxLateness,
		QoS:         true,
	}
}

// set assigns property value. Unknown names are ignored.
func (c *Config) set(name string, value interface{}) error {
	var err error
	switch name {
	case PropRenderRate:
		var d time.Duration
		if d, err = toDuration(value); err == nil {
			if d < 0 {
				d = 0
			}
			c.RenderRate = d
		}
	case PropMaxLateness:
		var d time.Duration
		if d, err = toDuration(value); err == nil {
			if d < 0 {
				d = LatenessUnlimited
			}
			c.MaxLateness = d
		}
	case PropEmitSignal:
		err = setBool(&c.EmitSignal, value)
	case PropSilent:
		err = setBool(&c.Silent, value)
	case PropSync:
		err = setBool(&c.Sync, value)
	case PropQoS:
		err = setBool(&c.QoS, value)
	default:
		return nil
	}
	if err != nil {
		return &PropertyError{Name: name, Value: value, Err: err}
	}
	return nil
}

// get returns property value. False is returned for unknown names.
func (c *Config) get(name string) (interface{}, bool) {
	switch name {
	case PropRenderRate:
		return c.RenderRate, true
	case PropEmitSignal:
		return c.EmitSignal, true
	case PropSilent:
		return c.Silent, true
	case PropSync:
		return c.Sync, true
	case PropMaxLateness:
		return c.MaxLateness, true
	case PropQoS:
		return c.QoS, true
	}
	return nil, false
}

// lateness returns max lateness if buffers can be dropped.
func (c *Config) lateness() (time.Duration, bool) {
	if !c.Sync || !c.QoS || c.MaxLateness == LatenessUnlimited {
		return 0, false
	}
	return c.MaxLateness, true
}

func setBool(p *bool, value interface{}) error {
	switch v := value.(type) {
	case bool:
		*p = v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ErrInvalidValue
		}
		*p = b
	default:
		return ErrInvalidValue
	}
	return nil
}

// toDuration converts integers as nanoseconds.
func toDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v), nil
	case int32:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case uint:
		return uintDuration(uint64(v)), nil
	case uint32:
		return time.Duration(v), nil
	case uint64:
		return uintDuration(v), nil
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n), nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, ErrInvalidValue
		}
		return d, nil
	}
	return 0, ErrInvalidValue
}

// uintDuration clamps values which don't fit into time.Duration.
func uintDuration(v uint64) time.Duration {
	const max = uint64(1<<63 - 1)
	if v > max {
		return time.Duration(max)
	}
	return time.Duration(v)
}
