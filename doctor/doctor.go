// Package doctor runs system diagnostics for murmur.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/config"
	"murmur/hotkey"
	"murmur/kv"
	"murmur/session"
	"murmur/transcriber"
	"murmur/voice"
)

const (
	defaultListen  = 3 * time.Second
	defaultTimeout = 10 * time.Second
)

type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Env holds what the standard checks exercise.
type Env struct {
	Config config.Config
	Audio  audio.Context
	Device *audio.DeviceInfo
	Store  kv.Store
	Dial   transcriber.Dialer

	Listen  time.Duration // how long the microphone check records
	Timeout time.Duration // bound on the connection check
}

func Checks(env Env) []Check {
	if env.Listen <= 0 {
		env.Listen = defaultListen
	}
	if env.Timeout <= 0 {
		env.Timeout = defaultTimeout
	}
	return []Check{
		{"Configuration", env.checkConfig},
		{"Session store", env.checkStore},
		{"Microphone", env.checkMic},
		{"Deepgram connection", env.checkConnection},
		{"Global hotkey", env.checkHotkey},
		{"Clipboard", checkClipboard},
	}
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "murmur doctor - system diagnostics")
	fmt.Fprintln(w, "==================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		msg, err := c.Run(ctx)
		if err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", msg)
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintf(w, "%d of %d checks failed. See details above.\n", failed, len(checks))
	return 1
}

func (e Env) checkConfig(context.Context) (string, error) {
	if err := e.Config.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("API key set, model %s (%s)", e.Config.Deepgram.Model, e.Config.Deepgram.Language), nil
}

func (e Env) checkStore(ctx context.Context) (string, error) {
	if e.Store == nil {
		return "", errors.New("no store")
	}
	raw, ok, err := e.Store.Get(ctx, session.Key)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if !ok {
		return "empty store at " + e.Config.Store.Path, nil
	}
	groups, err := session.Decode([]byte(raw))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d saved sessions at %s", len(groups), e.Config.Store.Path), nil
}

func (e Env) checkMic(ctx context.Context) (string, error) {
	if e.Audio == nil {
		return "", errors.New("no audio context")
	}
	dev, err := e.Audio.NewCapture(e.Device, audio.DefaultConfig())
	if err != nil {
		return "", err
	}
	defer dev.Close()

	var mu sync.Mutex
	var pcm []byte
	dev.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		if errors.Is(err, audio.ErrAccessDenied) {
			return "", fmt.Errorf("%w (check the system microphone permission)", err)
		}
		return "", err
	}
	select {
	case <-time.After(e.Listen):
	case <-ctx.Done():
	}
	dev.Stop()
	dev.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	if len(pcm) == 0 {
		return "", errors.New("no audio captured")
	}
	level := voice.Level(pcm)
	msg := fmt.Sprintf("%.1f KB from %s, level %.3f", float64(len(pcm))/1024, dev.DeviceName(), level)
	if level < voice.SpeechLevel {
		msg += " (no voice heard)"
	}
	if audio.IsBluetooth(dev.DeviceName()) {
		msg += " (Bluetooth: expect narrowband audio)"
	}
	return msg, nil
}

func (e Env) checkConnection(ctx context.Context) (string, error) {
	if err := e.Config.Validate(); err != nil {
		return "", fmt.Errorf("skipped: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := transcriber.Open(ctx, e.Dial, transcriber.Credentials{APIKey: e.Config.Deepgram.APIKey})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return "", errors.New("connection ended before opening")
			}
			switch ev := ev.(type) {
			case transcriber.Opened:
				return fmt.Sprintf("connected in %dms", time.Since(start).Milliseconds()), nil
			case transcriber.ErrorEvent:
				return "", ev.Err
			case transcriber.Closed:
				return "", errors.New("connection closed before opening")
			}
		case <-ctx.Done():
			return "", fmt.Errorf("no answer within %s", e.Timeout)
		}
	}
}

func (e Env) checkHotkey(context.Context) (string, error) {
	if !e.Config.Hotkey.Enabled {
		return "disabled in config", nil
	}
	return hotkey.Diagnose()
}

func checkClipboard(context.Context) (string, error) {
	if !clipboard.Available() {
		return "", clipboard.ErrUnsupported
	}
	return "clipboard utility found", nil
}
