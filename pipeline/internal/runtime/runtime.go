// Package runtime runs streaming loops of pipeline elements.
package runtime

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Executor executes a single streaming iteration.
type Executor interface {
	Start(context.Context) error
	Execute(context.Context) error
	Flush(context.Context) error
}

// Run starts the streaming goroutine of executor. Error channel is closed
// when the loop is done. io.EOF returned by Execute ends the loop
// without error.
func Run(ctx context.Context, e Executor) <-chan error {
	errc := make(chan error, 1)
	go run(ctx, e, errc)
	return errc
}

func run(ctx context.Context, e Executor, errc chan<- error) {
	defer close(errc)
	if err := e.Start(ctx); err != nil {
		errc <- errors.Wrap(err, "error starting element")
		return
	}
	var err error
	for err == nil {
		err = e.Execute(ctx)
	}
	if err != io.EOF {
		errc <- errors.Wrap(err, "error streaming")
		return
	}
	if err := e.Flush(ctx); err != nil {
		errc <- errors.Wrap(err, "error flushing element")
	}
}
