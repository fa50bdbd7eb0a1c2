package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	fakeFrames    = 1024
	fakeFrameTime = time.Duration(fakeFrames) * time.Second / SampleRate
)

// FakeContext plays PCM from memory instead of a microphone. With no PCM the
// captures it creates deliver nothing on their own and are driven with Feed.
type FakeContext struct {
	pcm      []byte
	realtime bool

	mu       sync.Mutex
	deny     bool
	gate     chan struct{}
	starting chan struct{}
	captures []*FakeCapture
}

// NewFakeContext loads a 16 kHz mono 16-bit WAV file. With realtime set the
// samples are paced at the capture rate; otherwise they are delivered at once.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakePCM(data, realtime), nil
}

func NewFakePCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

// DenyAccess makes every later Start fail with ErrAccessDenied.
func (f *FakeContext) DenyAccess(deny bool) {
	f.mu.Lock()
	f.deny = deny
	f.mu.Unlock()
}

// HoldStart makes later Starts block, as if waiting on a permission prompt,
// until release is called. starting receives once per blocked Start.
func (f *FakeContext) HoldStart() (starting <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 8)
	f.mu.Lock()
	f.gate, f.starting = gate, ch
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate, f.starting = nil, nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake microphone"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{ctx: f, audioDone: make(chan struct{})}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture handed out so far.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeCapture, len(f.captures))
	copy(out, f.captures)
	return out
}

// Last returns the most recent capture, or nil.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

type FakeCapture struct {
	ctx *FakeContext

	mu        sync.Mutex
	cb        DataCallback
	running   bool
	closed    bool
	starts    int
	stop      chan struct{}
	feedDone  chan struct{}
	audioDone chan struct{}
}

// AudioDone is closed once the whole PCM has been delivered.
func (c *FakeCapture) AudioDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioDone
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *FakeCapture) DeviceName() string { return "fake microphone" }

// Feed delivers data to the callback if the capture is running.
func (c *FakeCapture) Feed(data []byte) {
	c.mu.Lock()
	cb := c.cb
	running := c.running
	c.mu.Unlock()
	if running && cb != nil {
		cb(data, uint32(len(data)/BytesPerSample))
	}
}

func (c *FakeCapture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *FakeCapture) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *FakeCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeCapture) Start() error {
	c.ctx.mu.Lock()
	gate, starting := c.ctx.gate, c.ctx.starting
	c.ctx.mu.Unlock()
	if gate != nil {
		select {
		case starting <- struct{}{}:
		default:
		}
		<-gate
	}

	c.ctx.mu.Lock()
	deny := c.ctx.deny
	pcm, realtime := c.ctx.pcm, c.ctx.realtime
	c.ctx.mu.Unlock()
	if deny {
		return fmt.Errorf("fake start: %w", ErrAccessDenied)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("fake start: already running")
	}
	c.running = true
	c.starts++
	if len(pcm) == 0 {
		return nil
	}
	c.stop = make(chan struct{})
	c.feedDone = make(chan struct{})
	go c.play(pcm, realtime, c.stop, c.feedDone, c.audioDone)
	return nil
}

// play delivers pcm then keeps feeding silence at the capture rate until stopped.
func (c *FakeCapture) play(pcm []byte, realtime bool, stop, done, audioDone chan struct{}) {
	defer close(done)
	chunk := fakeFrames * BytesPerSample
	deliver := func(data []byte) {
		c.mu.Lock()
		cb := c.cb
		c.mu.Unlock()
		if cb != nil {
			cb(data, uint32(len(data)/BytesPerSample))
		}
	}
	wait := func(d time.Duration) bool {
		select {
		case <-stop:
			return false
		case <-time.After(d):
			return true
		}
	}

	for pos := 0; pos < len(pcm); pos += chunk {
		end := min(pos+chunk, len(pcm))
		data := make([]byte, end-pos)
		copy(data, pcm[pos:end])
		deliver(data)
		if realtime && !wait(fakeFrameTime) {
			return
		}
	}
	close(audioDone)

	silence := make([]byte, chunk)
	for wait(fakeFrameTime) {
		deliver(silence)
	}
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop, done := c.stop, c.feedDone
	c.stop, c.feedDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
		// replaying starts a fresh AudioDone
		c.mu.Lock()
		c.audioDone = make(chan struct{})
		c.mu.Unlock()
	}
}

func (c *FakeCapture) Close() {
	c.Stop()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
