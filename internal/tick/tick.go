// Package tick abstracts periodic tickers so timers can be driven by hand in tests.
package tick

import (
	"sync"
	"sync/atomic"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Factory creates a ticker firing every d.
type Factory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Real is the Factory backed by time.NewTicker.
func Real(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Manual hands out tickers that only fire when Fire is called.
type Manual struct {
	mu      sync.Mutex
	tickers []*ManualTicker
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Factory() Factory {
	return func(d time.Duration) Ticker {
		t := &ManualTicker{period: d, c: make(chan time.Time), stopped: make(chan struct{})}
		m.mu.Lock()
		m.tickers = append(m.tickers, t)
		m.mu.Unlock()
		return t
	}
}

// Created returns the number of tickers handed out so far.
func (m *Manual) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Last returns the most recently created ticker, or nil.
func (m *Manual) Last() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// Fire delivers one tick on the most recent ticker. Returns false when there is
// no live ticker.
func (m *Manual) Fire() bool {
	t := m.Last()
	if t == nil {
		return false
	}
	return t.Fire()
}

type ManualTicker struct {
	period   time.Duration
	c        chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
	stops    atomic.Int32
}

func (t *ManualTicker) C() <-chan time.Time { return t.c }

func (t *ManualTicker) Period() time.Duration { return t.period }

// Stop counts every call so tests can check a ticker was stopped exactly once.
func (t *ManualTicker) Stop() {
	t.stops.Add(1)
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *ManualTicker) Stops() int { return int(t.stops.Load()) }

// Fire blocks until the tick is received or the ticker is stopped.
func (t *ManualTicker) Fire() bool {
	select {
	case <-t.stopped:
		return false
	default:
	}
	select {
	case t.c <- time.Now():
		return true
	case <-t.stopped:
		return false
	}
}
