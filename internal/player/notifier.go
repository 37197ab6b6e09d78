// Package player implements the media resources a playback session binds
// to: an audio Deck that decodes and renders PCM frames, and a clock-driven
// Surface that stands in for a visual element.
package player

import (
	"sync"

	"github.com/satindergrewal/sonora/internal/media"
)

// notifier delivers events to subscribers on its own goroutine, so
// callers never see a callback from inside one of their own method calls.
// emit never blocks; subscribers may call straight back into the resource.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]func(media.Event)
	nextID int
	queue  []media.Event

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newNotifier() *notifier {
	n := &notifier{
		subs: make(map[int]func(media.Event)),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.dispatch()
	return n
}

func (n *notifier) subscribe(fn func(media.Event)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) emit(ev media.Event) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) close() {
	n.once.Do(func() { close(n.done) })
}

func (n *notifier) dispatch() {
	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			ev := n.queue[0]
			n.queue = n.queue[1:]
			fns := make([]func(media.Event), 0, len(n.subs))
			for _, fn := range n.subs {
				fns = append(fns, fn)
			}
			n.mu.Unlock()

			for _, fn := range fns {
				fn(ev)
			}
		}
	}
}
