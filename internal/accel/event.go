package accel

import "context"

// Event signals completion of a launch.
type Event struct {
	done chan struct{}
	err  error
}

func newEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// completedEvent returns an event that is already done with err.
func completedEvent(err error) *Event {
	ev := newEvent()
	ev.complete(err)
	return ev
}

func (e *Event) complete(err error) {
	e.err = err
	close(e.done)
}

// Done is closed when the launch has finished, successfully or not.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Err returns the launch error. It is only meaningful after Done is closed.
func (e *Event) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Wait blocks until the launch completes or ctx is done.
// A cancelled wait does not cancel the launch.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
