package audio

import (
	"context"
	"sync"
	"time"
)

// DefaultTick is the render tick for spectrum frames (~60 fps).
const DefaultTick = 16 * time.Millisecond

// SpectrumLoop polls a graph once per tick and hands normalized bars to a
// renderer. It only runs between Start and Stop; Stop is called as soon
// as playback leaves the playing state.
type SpectrumLoop struct {
	interval time.Duration
	render   func(bars []float64)

	mu      sync.Mutex
	source  *Graph
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSpectrumLoop creates a stopped loop.
func NewSpectrumLoop(interval time.Duration, render func(bars []float64)) *SpectrumLoop {
	if interval <= 0 {
		interval = DefaultTick
	}
	return &SpectrumLoop{interval: interval, render: render}
}

// Start begins polling g. Calling Start while running switches the source.
func (l *SpectrumLoop) Start(g *Graph) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.source = g
	if l.running || g == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.run(ctx, l.done)
}

// Stop halts the loop and waits for the in-flight frame to finish.
func (l *SpectrumLoop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()
	<-done
}

// Running reports whether frames are being issued.
func (l *SpectrumLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *SpectrumLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		g, running := l.source, l.running
		l.mu.Unlock()
		if !running || g == nil {
			return
		}
		l.render(g.Spectrum())
	}
}
