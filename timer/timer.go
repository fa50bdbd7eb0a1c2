// Package timer counts whole seconds of recording.
package timer

import (
	"fmt"
	"sync"
	"time"

	"murmur/internal/tick"
)

// Recording counts seconds while running. The count survives Stop and is
// reset by the next Start.
type Recording struct {
	newTicker tick.Factory
	onTick    func(elapsed int)

	mu      sync.Mutex
	elapsed int
	running bool
	t       tick.Ticker
	stop    chan struct{}
	done    chan struct{}
}

// New returns a stopped timer. onTick, if set, runs after every increment on
// the timer goroutine.
func New(factory tick.Factory, onTick func(elapsed int)) *Recording {
	if factory == nil {
		factory = tick.Real
	}
	return &Recording{newTicker: factory, onTick: onTick}
}

// Start resets the count to zero and begins counting. Starting a running
// timer restarts it.
func (r *Recording) Start() {
	r.Stop()

	r.mu.Lock()
	r.elapsed = 0
	r.running = true
	r.t = r.newTicker(time.Second)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.t, r.stop, r.done)
	r.mu.Unlock()
}

func (r *Recording) run(t tick.Ticker, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-t.C():
			r.mu.Lock()
			select {
			case <-stop:
				r.mu.Unlock()
				return
			default:
			}
			r.elapsed++
			n := r.elapsed
			r.mu.Unlock()
			if r.onTick != nil {
				r.onTick(n)
			}
		case <-stop:
			return
		}
	}
}

// Stop freezes the count. No tick is counted after Stop returns.
func (r *Recording) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	t, stop, done := r.t, r.stop, r.done
	r.t, r.stop, r.done = nil, nil, nil
	t.Stop()
	close(stop)
	r.mu.Unlock()
	<-done
}

func (r *Recording) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

func (r *Recording) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Format renders seconds as mm:ss. Minutes grow past two digits as needed.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
