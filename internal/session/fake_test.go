package session

import (
	"context"
	"sync"

	"github.com/satindergrewal/sonora/internal/media"
)

// fakeResource records calls and lets tests fire events as if from the
// resource's own goroutine.
type fakeResource struct {
	id string

	mu      sync.Mutex
	subs    map[int]func(media.Event)
	nextSub int
	loads   []media.Source
	loadFn  func(ctx context.Context, src media.Source) error
	playing bool
	pos     float64
	volume  float64
	seeks   []float64
}

func newFake(id string) *fakeResource {
	return &fakeResource{id: id, subs: make(map[int]func(media.Event))}
}

func (f *fakeResource) ID() string { return f.id }

func (f *fakeResource) Load(ctx context.Context, src media.Source) error {
	f.mu.Lock()
	f.loads = append(f.loads, src)
	fn := f.loadFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, src); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.pos = 0
	f.playing = false
	f.mu.Unlock()
	return nil
}

func (f *fakeResource) Play() error {
	f.mu.Lock()
	f.playing = true
	f.mu.Unlock()
	return nil
}

func (f *fakeResource) Pause() {
	f.mu.Lock()
	f.playing = false
	f.mu.Unlock()
}

func (f *fakeResource) Seek(t float64) {
	f.mu.Lock()
	f.pos = t
	f.seeks = append(f.seeks, t)
	f.mu.Unlock()
}

func (f *fakeResource) SetVolume(v float64) {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
}

func (f *fakeResource) Subscribe(fn func(media.Event)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeResource) fire(ev media.Event) {
	f.mu.Lock()
	fns := make([]func(media.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeResource) isPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeResource) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeResource) lastLoad() media.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[len(f.loads)-1]
}

func (f *fakeResource) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeDeck additionally accepts a processor, like the real audio deck.
type fakeDeck struct {
	*fakeResource
	installs int
}

func (d *fakeDeck) Install(media.Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.installs++
	if d.installs > 1 {
		return media.ErrAlreadyWrapped
	}
	return nil
}

func (d *fakeDeck) installCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.installs
}
