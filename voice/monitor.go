package voice

import "time"

const (
	// Tick is the chunk length the monitor assumes per call to Tick.
	Tick           = 100 * time.Millisecond
	warnAfter      = 8 * time.Second
	autoStopAfter  = 30 * time.Second
	speechMinRatio = 0.10
	// higher than speechMinRatio so the warning does not flap
	speechClearRatio = 0.25
)

type Event int

const (
	None      Event = iota
	Warn            // no voice detected
	WarnClear       // speech resumed after a warning
	Repeat          // still silent, every warnAfter
	AutoStop        // silent for autoStopAfter
)

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case Warn:
		return "no_voice_warning"
	case WarnClear:
		return "voice_cleared"
	case Repeat:
		return "silence_during_warning"
	case AutoStop:
		return "silence_auto_stop"
	}
	return "unknown"
}

// Monitor tracks speech over a sliding window of ticks. One Monitor covers one
// recording; it is not safe for concurrent use.
type Monitor struct {
	warnAt   int
	windowSz int
	autoStop bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastBeep    int
}

// NewMonitor returns a monitor. With autoStop set it reports AutoStop after a
// long silence and repeats the warning while silent.
func NewMonitor(autoStop bool) *Monitor {
	windowSz := int(autoStopAfter / Tick)
	return &Monitor{
		warnAt:   int(warnAfter / Tick),
		windowSz: windowSz,
		autoStop: autoStop,
		window:   make([]bool, windowSz),
	}
}

func (m *Monitor) ratio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Warned reports whether a no-voice warning is active.
func (m *Monitor) Warned() bool { return m.warned }

func (m *Monitor) Tick(hasSpeech bool) Event {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)

	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastBeep = m.ticks
		return Warn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return WarnClear
	}

	if !m.autoStop {
		return None
	}

	// checked before Repeat
	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return AutoStop
	}

	if m.warned && m.ticks-m.lastBeep >= m.warnAt {
		m.lastBeep = m.ticks
		return Repeat
	}

	return None
}
