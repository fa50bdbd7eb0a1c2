// Package capture turns microphone callbacks into fixed-size PCM chunks and
// forwards them to the transcription stream while it is ready.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/log"
)

const (
	ChunkDuration = 100 * time.Millisecond
	queueDepth    = 64
)

var (
	ErrBusy             = errors.New("capture: already armed")
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrDisarmed         = errors.New("capture: disarmed while starting")
	ErrClosed           = errors.New("capture: pipeline closed")
)

type State int32

const (
	Idle State = iota
	AwaitingPermission
	Armed
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingPermission:
		return "awaiting-permission"
	case Armed:
		return "armed"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Link is where chunks go. Chunks are only sent while Ready reports true.
type Link interface {
	Ready() bool
	Send(chunk []byte) error
}

// Hooks are called from pipeline goroutines and must not call Arm or Disarm.
type Hooks struct {
	// OnArmed runs once per successful Arm, before any chunk is emitted.
	OnArmed func()
	// OnChunk sees every chunk, forwarded or not.
	OnChunk func(chunk []byte)
	// OnDisarmed runs once per Disarm, after the last chunk.
	OnDisarmed func()
}

// chunk carries the link readiness observed when it was cut, so audio
// recorded before the stream opened is never sent after it opens.
type chunk struct {
	pcm   []byte
	ready bool
}

type Stats struct {
	Chunks    uint64
	Forwarded uint64
	Dropped   uint64
}

type Option func(*Pipeline)

func WithDevice(d *audio.DeviceInfo) Option {
	return func(p *Pipeline) { p.device = d }
}

func WithConfig(c audio.CaptureConfig) Option {
	return func(p *Pipeline) { p.config = c }
}

func WithHooks(h Hooks) Option {
	return func(p *Pipeline) { p.hooks = h }
}

func WithLink(l Link) Option {
	return func(p *Pipeline) { p.link = l }
}

// Pipeline owns the microphone. One recording runs at a time.
type Pipeline struct {
	audio     audio.Context
	device    *audio.DeviceInfo
	config    audio.CaptureConfig
	hooks     Hooks
	chunkSize int

	linkMu sync.RWMutex
	link   Link

	mu      sync.Mutex
	state   State
	dev     audio.CaptureDevice
	sent    chan struct{}
	started time.Time
	// abort is set by Disarm while Arm waits for the device.
	abort  bool
	closed bool

	// bufMu guards the re-framing buffer and the forward queue, which the
	// device thread writes to.
	bufMu sync.Mutex
	buf   []byte
	out   chan chunk
	live  bool

	chunks    atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

func New(ctx audio.Context, opts ...Option) *Pipeline {
	p := &Pipeline{
		audio:  ctx,
		config: audio.DefaultConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	p.chunkSize = int(p.config.SampleRate) * int(p.config.Channels) * audio.BytesPerSample * int(ChunkDuration/time.Millisecond) / 1000
	return p
}

// SetLink replaces the chunk destination. A nil link drops everything.
func (p *Pipeline) SetLink(l Link) {
	p.linkMu.Lock()
	p.link = l
	p.linkMu.Unlock()
}

func (p *Pipeline) currentLink() Link {
	p.linkMu.RLock()
	defer p.linkMu.RUnlock()
	return p.link
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) Armed() bool { return p.State() == Armed }

// ChunkSize is the size in bytes of every chunk except a trailing partial one.
func (p *Pipeline) ChunkSize() int { return p.chunkSize }

// Stats reports counters for the current or most recent recording.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Chunks:    p.chunks.Load(),
		Forwarded: p.forwarded.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Arm opens and starts the microphone. It blocks while the platform asks for
// permission. A refused device returns an error wrapping ErrPermissionDenied.
func (p *Pipeline) Arm(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != Idle {
		p.mu.Unlock()
		return ErrBusy
	}
	p.state = AwaitingPermission
	p.abort = false
	p.mu.Unlock()

	dev, err := p.open(ctx)
	if err != nil {
		p.mu.Lock()
		p.state = Idle
		p.abort = false
		p.mu.Unlock()
		if errors.Is(err, audio.ErrAccessDenied) {
			log.Warnf("capture: %v", err)
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		log.Errorf("capture: %v", err)
		return fmt.Errorf("capture: start: %w", err)
	}

	p.mu.Lock()
	if p.abort || p.closed {
		p.abort = false
		p.state = Idle
		p.mu.Unlock()
		release(dev)
		log.Info("capture: disarmed before the microphone started")
		return ErrDisarmed
	}
	p.chunks.Store(0)
	p.forwarded.Store(0)
	p.dropped.Store(0)
	queue := make(chan chunk, queueDepth)
	sent := make(chan struct{})
	go p.forward(queue, sent)

	p.bufMu.Lock()
	p.out = queue
	p.bufMu.Unlock()

	p.dev = dev
	p.sent = sent
	p.started = time.Now()
	p.state = Armed
	p.mu.Unlock()

	log.Info("capture armed: " + dev.DeviceName())
	if p.hooks.OnArmed != nil {
		p.hooks.OnArmed()
	}

	p.bufMu.Lock()
	if p.out == queue {
		p.live = true
	}
	p.bufMu.Unlock()
	return nil
}

func (p *Pipeline) open(ctx context.Context) (audio.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := p.audio.NewCapture(p.device, p.config)
	if err != nil {
		return nil, err
	}
	p.bufMu.Lock()
	p.buf = p.buf[:0]
	p.bufMu.Unlock()
	dev.SetCallback(p.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		release(dev)
		return nil, err
	}
	return dev, nil
}

func release(dev audio.CaptureDevice) {
	dev.Stop()
	dev.ClearCallback()
	dev.Close()
}

// onData runs on the device thread. Audio that arrives before the pipeline
// is live is held and goes out with the first chunk.
func (p *Pipeline) onData(data []byte, _ uint32) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	p.buf = append(p.buf, data...)
	if !p.live {
		return
	}
	ready := p.ready()
	for len(p.buf) >= p.chunkSize {
		pcm := make([]byte, p.chunkSize)
		copy(pcm, p.buf[:p.chunkSize])
		p.buf = p.buf[p.chunkSize:]
		select {
		case p.out <- chunk{pcm: pcm, ready: ready}:
		default:
			p.chunks.Add(1)
			p.dropped.Add(1)
		}
	}
}

func (p *Pipeline) ready() bool {
	link := p.currentLink()
	return link != nil && link.Ready()
}

// forward drains queue. A chunk cut while the link was not ready is dropped
// even if the link has opened since.
func (p *Pipeline) forward(queue <-chan chunk, done chan<- struct{}) {
	defer close(done)
	for c := range queue {
		p.chunks.Add(1)
		if p.hooks.OnChunk != nil {
			p.hooks.OnChunk(c.pcm)
		}
		link := p.currentLink()
		if !c.ready || link == nil || !link.Ready() {
			p.dropped.Add(1)
			continue
		}
		if err := link.Send(c.pcm); err != nil {
			p.dropped.Add(1)
			continue
		}
		p.forwarded.Add(1)
	}
}

// Disarm stops the microphone, sends the trailing partial chunk through the
// same gate and fires OnDisarmed. While Arm is still waiting for the device it
// makes that Arm fail with ErrDisarmed instead. Otherwise it does nothing
// unless armed.
func (p *Pipeline) Disarm() {
	p.mu.Lock()
	if p.state == AwaitingPermission {
		p.abort = true
		p.mu.Unlock()
		return
	}
	if p.state != Armed {
		p.mu.Unlock()
		return
	}
	p.state = Stopping
	dev, sent, started := p.dev, p.sent, p.started
	p.dev, p.sent = nil, nil
	p.mu.Unlock()

	release(dev)

	p.bufMu.Lock()
	p.live = false
	queue := p.out
	p.out = nil
	var tail []byte
	if len(p.buf) > 0 {
		tail = make([]byte, len(p.buf))
		copy(tail, p.buf)
	}
	p.buf = p.buf[:0]
	p.bufMu.Unlock()

	ready := p.ready()
	for len(tail) >= p.chunkSize {
		queue <- chunk{pcm: tail[:p.chunkSize], ready: ready}
		tail = tail[p.chunkSize:]
	}
	if len(tail) > 0 {
		queue <- chunk{pcm: tail, ready: ready}
	}
	close(queue)
	<-sent

	st := p.Stats()
	log.CaptureStats(st.Chunks, st.Forwarded, st.Dropped, time.Since(started).Seconds())

	p.mu.Lock()
	p.state = Idle
	p.mu.Unlock()

	if p.hooks.OnDisarmed != nil {
		p.hooks.OnDisarmed()
	}
}

// Close releases the microphone if a recording is running or starting. Later
// calls to Arm fail with ErrClosed.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Disarm()
}
