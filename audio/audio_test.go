package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestIsBluetooth(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Jabra Evolve2", true},
		{"Headset (BT)", true},
		{"Pixel Headset [BT]", true},
		{"Bluetooth Hands-Free", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
		{"Monitor of Built-in Audio", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBluetooth(tt.name); got != tt.want {
				t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBytesFor(t *testing.T) {
	if got := BytesFor(100 * time.Millisecond); got != 3200 {
		t.Errorf("BytesFor(100ms) = %d, want 3200", got)
	}
	if got := BytesFor(time.Second); got != BytesPerSecond {
		t.Errorf("BytesFor(1s) = %d, want %d", got, BytesPerSecond)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		denied bool
	}{
		{"nil", nil, false},
		{"permission", fmt.Errorf("open /dev/snd: %w", os.ErrPermission), true},
		{"message", errors.New("pulse: Access denied"), true},
		{"already wrapped", fmt.Errorf("x: %w", ErrAccessDenied), true},
		{"other", errors.New("device busy"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, ErrAccessDenied) != tt.denied {
				t.Errorf("classify(%v) = %v, denied want %v", tt.err, got, tt.denied)
			}
			if tt.err != nil && !errors.Is(got, tt.err) {
				t.Errorf("classify lost the original error")
			}
		})
	}
}

func TestApplyGain(t *testing.T) {
	tests := []struct {
		in   int16
		gain int
		want int16
	}{
		{1000, 0, 1000},
		{1000, 1, 1000},
		{1000, 4, 4000},
		{20000, 4, 32767},
		{-20000, 4, -32768},
	}
	for _, tt := range tests {
		if got := applyGain(tt.in, tt.gain); got != tt.want {
			t.Errorf("applyGain(%d, %d) = %d, want %d", tt.in, tt.gain, got, tt.want)
		}
	}
}

func TestFakeDenyAccess(t *testing.T) {
	ctx := NewFakePCM(nil, false)
	ctx.DenyAccess(true)
	dev, err := ctx.NewCapture(nil, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Start(); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Start err = %v, want ErrAccessDenied", err)
	}
	if ctx.Last().Running() {
		t.Error("denied capture is running")
	}
}

func TestFakeFeed(t *testing.T) {
	ctx := NewFakePCM(nil, false)
	dev, _ := ctx.NewCapture(nil, DefaultConfig())
	fc := ctx.Last()

	var got int
	dev.SetCallback(func(data []byte, frames uint32) { got += int(frames) })

	fc.Feed(make([]byte, 100))
	if got != 0 {
		t.Errorf("fed before Start: %d frames", got)
	}
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	fc.Feed(make([]byte, 100))
	dev.Stop()
	fc.Feed(make([]byte, 100))

	if got != 50 {
		t.Errorf("frames = %d, want 50", got)
	}
	if fc.Starts() != 1 {
		t.Errorf("Starts() = %d, want 1", fc.Starts())
	}
}

func TestFakePlaysWAV(t *testing.T) {
	pcm := make([]byte, 5000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, append(make([]byte, WAVHeaderSize), pcm...), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, err := NewFakeContext(path, false)
	if err != nil {
		t.Fatal(err)
	}
	dev, _ := ctx.NewCapture(nil, DefaultConfig())
	fc := ctx.Last()

	var mu sync.Mutex
	var got []byte
	dev.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		got = append(got, data...)
		mu.Unlock()
	})
	done := fc.AudioDone()
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AudioDone never closed")
	}
	dev.ClearCallback()
	dev.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) < len(pcm) || string(got[:len(pcm)]) != string(pcm) {
		t.Errorf("delivered %d bytes, want the %d WAV payload bytes first", len(got), len(pcm))
	}
	if !fc.Closed() || fc.Running() {
		t.Error("capture not released after Close")
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakePCM(nil, false)
	dev, err := FindDevice(ctx, "MICRO")
	if err != nil || dev.ID != "fake" {
		t.Errorf("FindDevice = %v, %v", dev, err)
	}
	if _, err := FindDevice(ctx, "speaker"); !errors.Is(err, ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}
