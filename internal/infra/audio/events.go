package audio

import (
	"context"
	"sync"

	"github.com/osa030/tunedeck/internal/app/playback"
)

type event struct {
	gen  uint64
	fire func(playback.Listener)
}

// eventQueue delivers events in order on a single goroutine. push never
// blocks, so it is safe to call with the sink or output locks held.
type eventQueue struct {
	mu      sync.Mutex
	pending []event
	wake    chan struct{}
	deliver func(gen uint64, fire func(playback.Listener))
}

func newEventQueue(deliver func(uint64, func(playback.Listener))) *eventQueue {
	return &eventQueue{
		wake:    make(chan struct{}, 1),
		deliver: deliver,
	}
}

func (q *eventQueue) push(gen uint64, fire func(playback.Listener)) {
	q.mu.Lock()
	q.pending = append(q.pending, event{gen: gen, fire: fire})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			q.deliver(ev.gen, ev.fire)
		}
	}
}
