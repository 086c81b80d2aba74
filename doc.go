/*
Package tensorsink provides a terminal pipeline element which hands
buffers over to application callbacks.

Concept

The sink is the last stage of a pipeline. It doesn't forward or change
buffers, it only lets observers look at them:

    new-data - a buffer reached the sink;
    stream-start - the stream started, emitted once before any new-data;
    eos - the stream ended, emitted once after the last new-data.

Hosting pipeline drives the element from a single streaming goroutine:

    s := tensorsink.New(tensorsink.WithName("test_sink"))
    s.OnNewData(func(b *tensorsink.Buffer) {
        // read b.Memories, don't keep them
    })
    s.Start()
    s.StreamStart()
    for _, b := range buffers {
        s.Render(b)
    }
    s.EOS()

If the pipeline reports an error or a warning, Fault must be called.
Element stops all notifications, including the rest of observers of the
buffer being emitted, and rejects further buffers. End of stream is
final, Fault after it is ignored.

Properties

Element behaviour is configured with properties. They can be changed by
name at any time, new values are applied at the next buffer:

    render-rate - minimal interval between new-data notifications;
    emit-signal - enables notifications;
    silent - disables diagnostic logs;
    sync - paces buffers to the pipeline clock;
    max-lateness - drops buffers which are later than this;
    qos - enables dropping of late buffers.

Set accepts durations as time.Duration, integer nanoseconds or strings
like "15ms", booleans as bool or strings like "true". Get always returns
canonical types: time.Duration for render-rate and max-lateness, bool for
the rest.

Unknown property names are ignored by Set and reported as absent by Get.
Connect to unknown channel returns InvalidHandle.
*/
package tensorsink
