// Package actorify turns a function that may be called from many goroutines
// into one that runs on a single goroutine, one call at a time, using the
// Actor pattern[1].
//
// [1]: https://en.wikipedia.org/wiki/Actor_model
package actorify

import (
	"context"
	"errors"
)

func z[Z any]() Z {
	var z Z
	return z
}

var (
	// ErrActorDied is returned when the actor stopped before replying.
	ErrActorDied = errors.New("actorify: the actor stopped before replying")
)

// Handler is the work the Actor performs for each call.
type Handler[Input, Output any] func(ctx context.Context, input Input) (Output, error)

// Actor runs its Handler on one background goroutine. Call queues a message
// in the inbox and waits for the reply, so calls never overlap.
type Actor[Input, Output any] struct {
	handler Handler[Input, Output]
	inbox   chan *message[Input, Output]
	done    chan struct{}
}

type message[Input, Output any] struct {
	ctx   context.Context
	arg   Input
	reply chan reply[Output]
}

type reply[Output any] struct {
	output Output
	err    error
}

// New starts an Actor. Cancelling ctx stops it once the current call, if
// any, has returned.
func New[Input, Output any](ctx context.Context, handler Handler[Input, Output]) *Actor[Input, Output] {
	result := &Actor[Input, Output]{
		handler: handler,
		inbox:   make(chan *message[Input, Output], 32),
		done:    make(chan struct{}),
	}

	go result.handle(ctx)

	return result
}

func (a *Actor[Input, Output]) handle(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbox:
			output, err := a.handler(msg.ctx, msg.arg)
			msg.reply <- reply[Output]{output: output, err: err}
		}
	}
}

// Call runs the handler with input on the actor goroutine and returns its
// result. If ctx ends first, Call returns the context's cause without
// waiting; the queued work may still run.
func (a *Actor[Input, Output]) Call(ctx context.Context, input Input) (Output, error) {
	msg := &message[Input, Output]{
		ctx:   ctx,
		arg:   input,
		reply: make(chan reply[Output], 1),
	}

	select {
	case a.inbox <- msg:
	case <-a.done:
		return z[Output](), ErrActorDied
	case <-ctx.Done():
		return z[Output](), context.Cause(ctx)
	}

	select {
	case r := <-msg.reply:
		return r.output, r.err
	case <-a.done:
		// The actor may have replied right before stopping.
		select {
		case r := <-msg.reply:
			return r.output, r.err
		default:
			return z[Output](), ErrActorDied
		}
	case <-ctx.Done():
		return z[Output](), context.Cause(ctx)
	}
}

// Done is closed once the actor goroutine has exited.
func (a *Actor[Input, Output]) Done() <-chan struct{} {
	return a.done
}
