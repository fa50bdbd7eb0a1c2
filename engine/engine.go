// Package engine owns one transcription run: the session store, the service
// connection, the capture pipeline, the transcript assembler and the
// recording timer.
package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/capture"
	"murmur/internal/tick"
	"murmur/kv"
	"murmur/log"
	"murmur/session"
	"murmur/timer"
	"murmur/transcriber"
	"murmur/transcript"
	"murmur/voice"
)

// Cues plays audible feedback. beep.Speaker satisfies it.
type Cues interface {
	Play(beep.Cue)
}

type silent struct{}

func (silent) Play(beep.Cue) {}

type Deps struct {
	Audio       audio.Context
	Store       kv.Store
	Dial        transcriber.Dialer
	Credentials transcriber.Credentials

	Device  *audio.DeviceInfo
	Capture audio.CaptureConfig

	// Heartbeat defaults to transcriber.DefaultHeartbeat.
	Heartbeat      time.Duration
	HeartbeatTicks tick.Factory
	TimerTicks     tick.Factory

	Cues Cues
	// AutoStop disarms after a long stretch without speech.
	AutoStop bool
	// IDs generates group and utterance ids. Defaults to random UUIDs.
	IDs func() string
}

// Snapshot is what a presentation layer renders.
type Snapshot struct {
	session.Snapshot
	Armed      bool
	Elapsed    int
	Connection transcriber.State
	Capture    capture.Stats
	// Level is the RMS of the latest chunk, 0..1.
	Level   float64
	NoVoice bool
}

type Engine struct {
	deps  Deps
	cues  Cues
	store *session.Store
	asm   *transcript.Assembler
	pipe  *capture.Pipeline
	rec   *timer.Recording

	mu         sync.Mutex
	conn       *transcriber.Conn
	dispatched chan struct{}

	monMu   sync.Mutex
	mon     *voice.Monitor
	level   atomic.Uint64
	noVoice atomic.Bool

	changes   chan struct{}
	closeOnce sync.Once
}

func New(deps Deps) *Engine {
	e := &Engine{
		deps:    deps,
		cues:    deps.Cues,
		changes: make(chan struct{}, 1),
	}
	if e.cues == nil {
		e.cues = silent{}
	}

	storeOpts := []session.Option{session.WithNotify(e.notify)}
	var asmOpts []transcript.Option
	if deps.IDs != nil {
		storeOpts = append(storeOpts, session.WithIDs(deps.IDs))
		asmOpts = append(asmOpts, transcript.WithIDs(deps.IDs))
	}
	e.store = session.NewStore(deps.Store, storeOpts...)
	e.asm = transcript.New(e.store, asmOpts...)
	e.rec = timer.New(deps.TimerTicks, func(int) { e.notify() })

	pipeOpts := []capture.Option{
		capture.WithDevice(deps.Device),
		capture.WithHooks(capture.Hooks{
			OnArmed:    e.onArmed,
			OnChunk:    e.onChunk,
			OnDisarmed: e.onDisarmed,
		}),
	}
	if deps.Capture.SampleRate != 0 {
		pipeOpts = append(pipeOpts, capture.WithConfig(deps.Capture))
	}
	e.pipe = capture.New(deps.Audio, pipeOpts...)
	return e
}

// Start restores persisted groups, seeds a fresh selected group and opens
// the service connection. A missing credential is returned wrapped in
// transcriber.ErrConfig, but the engine stays usable: recordings still
// create utterances, they just never receive text.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.store.Restore(ctx); err != nil && !errors.Is(err, session.ErrPersistence) {
		return err
	}

	var opts []transcriber.Option
	if e.deps.Heartbeat > 0 {
		opts = append(opts, transcriber.WithHeartbeat(e.deps.Heartbeat))
	}
	if e.deps.HeartbeatTicks != nil {
		opts = append(opts, transcriber.WithTicker(e.deps.HeartbeatTicks))
	}
	opts = append(opts, transcriber.WithStateHook(e.notify))

	conn, err := transcriber.Open(ctx, e.deps.Dial, e.deps.Credentials, opts...)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	e.mu.Lock()
	e.conn, e.dispatched = conn, done
	e.mu.Unlock()
	e.pipe.SetLink(conn)
	go e.dispatch(conn, done)
	return nil
}

// dispatch is the only consumer of connection events, so fragments are
// applied in the order the service sent them.
func (e *Engine) dispatch(conn *transcriber.Conn, done chan<- struct{}) {
	defer close(done)
	h := handler{e}
	for ev := range conn.Events() {
		transcriber.Dispatch(ev, h)
	}
}

type handler struct{ e *Engine }

func (h handler) OnOpened() { h.e.notify() }

func (h handler) OnFragment(f transcriber.Fragment) {
	h.e.asm.OnFragment(f.Text)
}

func (h handler) OnWarning(transcriber.Warning)   {}
func (h handler) OnMetadata(transcriber.Metadata) {}

func (h handler) OnError(ev transcriber.ErrorEvent) {
	log.Errorf("transcription stopped: %v", ev.Err)
	h.e.cues.Play(beep.Error)
	h.e.notify()
}

func (h handler) OnClosed() { h.e.notify() }

func (e *Engine) onArmed() {
	e.monMu.Lock()
	e.mon = voice.NewMonitor(e.deps.AutoStop)
	e.monMu.Unlock()
	e.level.Store(0)
	e.noVoice.Store(false)

	e.asm.OnArmed()
	e.rec.Start()
	e.cues.Play(beep.Start)
	e.notify()
}

// onChunk runs on the capture sender goroutine, once per chunk.
func (e *Engine) onChunk(chunk []byte) {
	level := voice.Level(chunk)
	e.level.Store(math.Float64bits(level))

	e.monMu.Lock()
	mon := e.mon
	var ev voice.Event
	if mon != nil {
		ev = mon.Tick(level >= voice.SpeechLevel)
	}
	e.monMu.Unlock()

	switch ev {
	case voice.Warn, voice.Repeat:
		log.Info(ev.String())
		e.noVoice.Store(true)
		e.cues.Play(beep.Error)
	case voice.WarnClear:
		e.noVoice.Store(false)
	case voice.AutoStop:
		log.Info(ev.String())
		// hooks must not disarm synchronously
		go func() {
			e.monMu.Lock()
			same := e.mon == mon
			e.monMu.Unlock()
			if same {
				e.Disarm()
			}
		}()
	}
	e.notify()
}

func (e *Engine) onDisarmed() {
	e.level.Store(0)
	e.cues.Play(beep.Stop)
	e.notify()
}

// Arm starts a recording into the selected group.
func (e *Engine) Arm(ctx context.Context) error {
	return e.pipe.Arm(ctx)
}

// Disarm stops the recording. The elapsed count freezes before the
// microphone is released.
func (e *Engine) Disarm() {
	e.rec.Stop()
	e.pipe.Disarm()
}

// Toggle disarms when armed and arms otherwise.
func (e *Engine) Toggle(ctx context.Context) error {
	if e.pipe.Armed() {
		e.Disarm()
		return nil
	}
	return e.Arm(ctx)
}

// Recording reports whether the capture pipeline is armed.
func (e *Engine) Recording() bool { return e.pipe.Armed() }

func (e *Engine) CreateGroup() string { return e.store.CreateGroup() }

func (e *Engine) Select(id string) bool { return e.store.Select(id) }

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Snapshot:   e.store.Snapshot(),
		Armed:      e.pipe.Armed(),
		Elapsed:    e.rec.Elapsed(),
		Connection: transcriber.StateIdle,
		Capture:    e.pipe.Stats(),
		Level:      math.Float64frombits(e.level.Load()),
		NoVoice:    e.noVoice.Load(),
	}
	e.mu.Lock()
	if e.conn != nil {
		s.Connection = e.conn.State()
	}
	e.mu.Unlock()
	return s
}

// Changes receives a value after state changes. Bursts are coalesced, so a
// reader should take a fresh Snapshot on each receive.
func (e *Engine) Changes() <-chan struct{} { return e.changes }

func (e *Engine) notify() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

// Close stops recording, closes the connection, waits for pending events to
// be applied and releases the stores. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.rec.Stop()
		e.pipe.Close()

		e.mu.Lock()
		conn, dispatched := e.conn, e.dispatched
		e.mu.Unlock()
		if conn != nil {
			e.pipe.SetLink(nil)
			conn.Close()
			<-dispatched
			sent, dropped := conn.Stats()
			log.Infof("connection: sent %d chunks, dropped %d", sent, dropped)
		}

		log.SessionEnd(len(e.store.Snapshot().Groups))
		e.store.Close()
		if e.deps.Store != nil {
			err = e.deps.Store.Close()
		}
	})
	return err
}
