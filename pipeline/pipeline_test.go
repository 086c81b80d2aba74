package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/tensorsink"
	"github.com/dudk/tensorsink/clock"
	"github.com/dudk/tensorsink/mock"
	"github.com/dudk/tensorsink/pipeline"
)

const numBuffers = 10

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testData is the per-test state of the pipeline under test.
type testData struct {
	pipeline *pipeline.Pipeline
	sink     *tensorsink.Sink
	source   *mock.Source
	observer *mock.Observer
}

func setup(t *testing.T, numBuffers int, options ...tensorsink.Option) *testData {
	t.Helper()
	source := &mock.Source{
		Limit:    numBuffers,
		Interval: 10 * time.Millisecond,
		Size:     640 * 480 * 3,
	}
	options = append([]tensorsink.Option{
		tensorsink.WithName("test_sink"),
		tensorsink.WithClock(clock.NewManual()),
	}, options...)
	sink := tensorsink.New(options...)
	p := pipeline.New(source, sink, pipeline.WithName("test"))
	require.NotNil(t, p.Bus())
	require.Equal(t, sink, p.Sink())
	return &testData{
		pipeline: p,
		sink:     sink,
		source:   source,
		observer: &mock.Observer{},
	}
}

// run plays the pipeline and waits for the terminal bus message.
func (d *testData) run(ctx context.Context, t *testing.T) (pipeline.Status, error, error) {
	t.Helper()
	errc := d.pipeline.Run(ctx)
	status, busErr := pipeline.Watch(context.Background(), d.pipeline.Bus(), nil)
	return status, busErr, pipeline.Wait(errc)
}

func TestSignals(t *testing.T) {
	d := setup(t, numBuffers)
	require.NoError(t, d.sink.Set(tensorsink.PropEmitSignal, true))
	for _, h := range d.observer.Attach(d.sink) {
		assert.True(t, h > 0)
	}

	status, busErr, err := d.run(context.Background(), t)
	assert.NoError(t, err)
	assert.NoError(t, busErr)
	assert.Equal(t, pipeline.StatusEOS, status)

	assert.Equal(t, numBuffers, d.observer.Received())
	assert.True(t, d.observer.Started())
	assert.True(t, d.observer.Ended())
	buffers, _ := d.source.Count()
	assert.Equal(t, numBuffers, buffers)
}

func TestRenderRate(t *testing.T) {
	d := setup(t, numBuffers)
	require.NoError(t, d.sink.Set(tensorsink.PropEmitSignal, true))
	require.NoError(t, d.sink.Set(tensorsink.PropRenderRate, 15*time.Millisecond))
	assert.True(t, d.sink.OnNewData(d.observer.NewData) > 0)

	status, _, err := d.run(context.Background(), t)
	assert.NoError(t, err)
	assert.Equal(t, pipeline.StatusEOS, status)
	assert.True(t, d.observer.Received() < numBuffers)
	assert.Equal(t, int64(numBuffers), d.sink.Stats().Received)
}

func TestUnknownCase(t *testing.T) {
	d := setup(t, numBuffers)
	require.NoError(t, d.sink.Set("unknown-prop", 1))
	v, ok := d.sink.Get("unknown-prop")
	assert.False(t, ok)
	assert.Nil(t, v)

	var called int
	h := d.sink.Connect("unknown-sig", func(*tensorsink.Buffer) { called++ })
	assert.Equal(t, tensorsink.InvalidHandle, h)

	status, _, err := d.run(context.Background(), t)
	assert.NoError(t, err)
	assert.Equal(t, pipeline.StatusEOS, status)
	assert.Equal(t, 0, called)
}

func TestMessages(t *testing.T) {
	d := setup(t, 3)
	errc := d.pipeline.Run(context.Background())
	var messages []pipeline.MessageType
	status, err := pipeline.Watch(context.Background(), d.pipeline.Bus(), func(m pipeline.Message) {
		messages = append(messages, m.Type)
		assert.Equal(t, "test_sink", m.Source)
	})
	assert.NoError(t, err)
	assert.Equal(t, pipeline.StatusEOS, status)
	assert.Equal(t, []pipeline.MessageType{pipeline.MessageStreamStart, pipeline.MessageEOS}, messages)
	assert.NoError(t, pipeline.Wait(errc))
}

func TestStreamStartedByHost(t *testing.T) {
	d := setup(t, 3)
	d.observer.Attach(d.sink)
	require.True(t, d.sink.StreamStart())

	errc := d.pipeline.Run(context.Background())
	var messages []pipeline.MessageType
	status, err := pipeline.Watch(context.Background(), d.pipeline.Bus(), func(m pipeline.Message) {
		messages = append(messages, m.Type)
	})
	assert.NoError(t, err)
	assert.Equal(t, pipeline.StatusEOS, status)
	assert.Equal(t, []pipeline.MessageType{pipeline.MessageEOS}, messages)
	assert.NoError(t, pipeline.Wait(errc))
	assert.Equal(t, 1, d.observer.Count(tensorsink.StreamStart))
}

func TestRealtimeSource(t *testing.T) {
	source := &mock.Source{
		Limit:    300,
		Interval: time.Millisecond,
		Realtime: true,
	}
	sink := tensorsink.New(tensorsink.WithClock(clock.System()))
	p := pipeline.New(source, sink)

	errc := p.Run(context.Background())
	status, busErr := pipeline.Watch(context.Background(), p.Bus(), nil)
	assert.NoError(t, pipeline.Wait(errc))
	assert.NoError(t, busErr)
	assert.Equal(t, pipeline.StatusEOS, status)

	stats := sink.Stats()
	assert.Equal(t, int64(300), stats.Received)
	assert.Equal(t, int64(0), stats.Dropped)
}

func TestSourceError(t *testing.T) {
	errSource := errors.New("source error")
	d := setup(t, numBuffers)
	d.source.ErrorOnCall = errSource
	d.source.ErrorAfter = 3
	d.observer.Attach(d.sink)

	status, busErr, err := d.run(context.Background(), t)
	assert.Equal(t, pipeline.StatusError, status)
	assert.True(t, errors.Is(busErr, errSource))
	assert.True(t, errors.Is(err, errSource))

	assert.Equal(t, tensorsink.StateErrorOrWarning, d.sink.State())
	assert.Equal(t, 3, d.observer.Received())
	assert.True(t, d.observer.Started())
	assert.False(t, d.observer.Ended())
}

func TestExternalFault(t *testing.T) {
	errElement := errors.New("converter error")
	d := setup(t, numBuffers)
	d.observer.Attach(d.sink)
	d.sink.OnNewData(func(b *tensorsink.Buffer) {
		if b.Offset == 2 {
			d.pipeline.Bus().Post(pipeline.Message{
				Type:   pipeline.MessageError,
				Source: "tensor_converter",
				Err:    errElement,
			})
		}
	})

	status, busErr, err := d.run(context.Background(), t)
	assert.NoError(t, err)
	assert.Equal(t, pipeline.StatusError, status)
	assert.Equal(t, errElement, busErr)
	assert.Equal(t, errElement, d.sink.Err())
	assert.Equal(t, 3, d.observer.Received())
	assert.False(t, d.observer.Ended())
	assert.Equal(t, int64(3), d.sink.Stats().Received)
}

func TestCancel(t *testing.T) {
	source := &mock.Source{
		Limit:    numBuffers,
		Interval: time.Hour,
	}
	sink := tensorsink.New(tensorsink.WithClock(clock.System()))
	p := pipeline.New(source, sink)

	ctx, cancelFn := context.WithCancel(context.Background())
	errc := p.Run(ctx)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancelFn()
	}()
	status, busErr := pipeline.Watch(context.Background(), p.Bus(), nil)
	err := pipeline.Wait(errc)

	assert.Equal(t, pipeline.StatusError, status)
	assert.True(t, errors.Is(busErr, context.Canceled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, tensorsink.StateErrorOrWarning, sink.State())
}

func TestTerminatedSink(t *testing.T) {
	d := setup(t, numBuffers)
	d.sink.Fault(errors.New("faulted"))

	err := pipeline.Wait(d.pipeline.Run(context.Background()))
	assert.True(t, errors.Is(err, tensorsink.ErrTerminated))
}

func TestBus(t *testing.T) {
	bus := pipeline.NewBus()
	var handled []pipeline.MessageType
	bus.AddSyncHandler(func(m pipeline.Message) {
		handled = append(handled, m.Type)
	})
	assert.True(t, bus.Post(pipeline.Message{Type: pipeline.MessageStreamStart}))
	assert.True(t, bus.Post(pipeline.Message{Type: pipeline.MessageWarning}))
	bus.Close()
	bus.Close()
	assert.False(t, bus.Post(pipeline.Message{Type: pipeline.MessageEOS}))

	// queued messages are delivered after close
	m, ok := bus.Pop(context.Background())
	assert.True(t, ok)
	assert.Equal(t, pipeline.MessageStreamStart, m.Type)
	m, ok = bus.Pop(context.Background())
	assert.True(t, ok)
	assert.Equal(t, pipeline.MessageWarning, m.Type)
	_, ok = bus.Pop(context.Background())
	assert.False(t, ok)

	assert.Equal(t, []pipeline.MessageType{pipeline.MessageStreamStart, pipeline.MessageWarning}, handled)
}

func TestWatchContextDone(t *testing.T) {
	bus := pipeline.NewBus()
	bus.Post(pipeline.Message{Type: pipeline.MessageStreamStart})
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()
	status, err := pipeline.Watch(ctx, bus, nil)
	assert.Equal(t, pipeline.StatusStream, status)
	assert.Equal(t, context.Canceled, err)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "eos", pipeline.StatusEOS.String())
	assert.Equal(t, "warning", pipeline.MessageWarning.String())
	assert.Equal(t, "unknown", pipeline.MessageType(42).String())
	assert.Equal(t, "unknown", pipeline.Status(42).String())
}
