// Package beep plays the short cues that mark recording start, stop and
// connection errors.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Disabled() bool { return disabled.Load() }

const sampleRate = 44100

type Cue int

const (
	Start Cue = iota
	Stop
	Error
)

func (c Cue) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Error:
		return "error"
	}
	return "unknown"
}

type tone struct {
	freq, volume, decay float64
	dur, gap            float64
	repeat              int
}

var tones = map[Cue]tone{
	// high pitch, short
	Start: {freq: 1200, volume: 0.5, decay: 60, dur: 0.2, repeat: 1},
	// medium pitch, slightly longer tail
	Stop: {freq: 900, volume: 0.5, decay: 40, dur: 0.2, repeat: 1},
	// low double beep
	Error: {freq: 350, volume: 0.6, decay: 30, dur: 0.08, gap: 0.05, repeat: 2},
}

// samples renders a cue as mono signed 16-bit PCM.
func samples(c Cue) []int16 {
	t, ok := tones[c]
	if !ok {
		return nil
	}
	one := generateTick(t.freq, t.dur, t.volume, t.decay)
	gap := make([]int16, int(sampleRate*t.gap))
	var out []int16
	for i := 0; i < t.repeat; i++ {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, one...)
	}
	return out
}

func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return out
}

// Speaker plays cues on the default output device.
type Speaker struct{}

// Play returns immediately; playback happens in the background.
func (Speaker) Play(c Cue) {
	if disabled.Load() {
		return
	}
	pcm := samples(c)
	if len(pcm) == 0 {
		return
	}
	go play(pcm)
}

// Init opens the output device ahead of the first cue.
func Init() {
	if disabled.Load() {
		return
	}
	initDevice()
}
