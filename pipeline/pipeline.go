// Package pipeline hosts a tensor sink. It pulls buffers from a source,
// drives the sink lifecycle from a single streaming goroutine and reports
// stream events on a bus.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/dudk/tensorsink"
	"github.com/dudk/tensorsink/log"
	"github.com/dudk/tensorsink/pipeline/internal/runtime"
)

// Source produces buffers for the sink. It must return io.EOF when
// stream ends.
type Source interface {
	Next(context.Context) (*tensorsink.Buffer, error)
}

// Pipeline binds source and sink.
type Pipeline struct {
	uid    string
	name   string
	source Source
	sink   *tensorsink.Sink
	bus    *Bus
	log    logrus.FieldLogger
}

// Option provides a way to set functional parameters to pipeline.
type Option func(*Pipeline)

// WithName sets name to pipeline.
func WithName(n string) Option {
	return func(p *Pipeline) {
		p.name = n
	}
}

// WithLogger sets logger to pipeline.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// New creates a new pipeline. Error and warning messages posted on its
// bus fault the sink.
func New(source Source, sink *tensorsink.Sink, options ...Option) *Pipeline {
	p := &Pipeline{
		uid:    xid.New().String(),
		source: source,
		sink:   sink,
		bus:    NewBus(),
	}
	for _, option := range options {
		option(p)
	}
	if p.log == nil {
		p.log = log.GetLogger()
	}
	p.log = p.log.WithField("pipeline", p.String())
	p.bus.AddSyncHandler(func(m Message) {
		switch m.Type {
		case MessageError, MessageWarning:
			p.sink.Fault(m.Err)
		}
	})
	return p
}

// Bus returns the pipeline bus.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// Sink returns the pipeline sink.
func (p *Pipeline) Sink() *tensorsink.Sink {
	return p.sink
}

// Run starts streaming. Returned channel is closed when streaming is
// done, the only error is sent if it failed. Bus is closed after that.
func (p *Pipeline) Run(ctx context.Context) <-chan error {
	errc := runtime.Run(ctx, &executor{
		source: p.source,
		sink:   p.sink,
		bus:    p.bus,
	})
	out := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		// sink can be waiting for clock, unblock it when cancelled.
		select {
		case <-ctx.Done():
			p.bus.Post(Message{
				Type:   MessageWarning,
				Source: p.String(),
				Err:    ctx.Err(),
			})
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer p.bus.Close()
		defer close(done)
		for err := range errc {
			p.log.WithError(err).Debug("streaming failed")
			t := MessageError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				t = MessageWarning
			}
			p.bus.Post(Message{
				Type:   t,
				Source: p.String(),
				Err:    err,
			})
			out <- err
		}
	}()
	return out
}

// Convert pipeline to string. Name is included if has value.
func (p *Pipeline) String() string {
	if p.name == "" {
		return p.uid
	}
	return fmt.Sprintf("%v %v", p.name, p.uid)
}

// Wait for streaming to finish or first error to occur.
func Wait(errc <-chan error) error {
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

// executor streams buffers from source into sink.
type executor struct {
	source Source
	sink   *tensorsink.Sink
	bus    *Bus
}

func (e *executor) Start(ctx context.Context) error {
	switch state := e.sink.State(); {
	case state == tensorsink.StateStart:
		if err := e.sink.Start(); err != nil {
			return err
		}
	case state.Terminal():
		return tensorsink.ErrTerminated
	}
	// host could start the stream already.
	if e.sink.StreamStart() {
		e.bus.Post(Message{Type: MessageStreamStart, Source: e.sink.Name()})
	}
	return nil
}

func (e *executor) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	b, err := e.source.Next(ctx)
	if err != nil {
		return err
	}
	if _, err := e.sink.Render(b); err != nil {
		if errors.Is(err, tensorsink.ErrTerminated) {
			// faulted by another element, the cause is already on the bus.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return io.EOF
		}
		return err
	}
	return nil
}

// Flush is only called when source is done.
func (e *executor) Flush(ctx context.Context) error {
	e.sink.EOS()
	if e.sink.State() != tensorsink.StateEOS {
		return nil
	}
	e.bus.Post(Message{Type: MessageEOS, Source: e.sink.Name()})
	return nil
}
