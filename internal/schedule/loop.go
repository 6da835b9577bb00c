package schedule

import "context"

// Poster queues work onto the dispatch goroutine. Timer expiries and bus
// signals arrive on their own goroutines; posting them here is what keeps
// every state transition single-threaded.
type Poster interface {
	Post(fn func() error)
}

// Loop runs posted events one at a time on a single goroutine. The first
// event that returns a non-nil error stops the loop and surfaces the error
// to the caller of Run.
type Loop struct {
	events chan func() error
}

func NewLoop() *Loop {
	return &Loop{events: make(chan func() error, 64)}
}

// Post queues fn for execution. Safe to call from any goroutine.
func (l *Loop) Post(fn func() error) {
	l.events <- fn
}

// Run consumes events until ctx is cancelled or an event fails. A cancelled
// context is a normal shutdown and returns nil; events still queued at that
// point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.events:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}
