package hotkey

import (
	"context"
	"time"
)

// Recorder is what the shortcut arms and disarms.
type Recorder interface {
	Arm(ctx context.Context) error
	Disarm()
	Recording() bool
}

// Drive maps key presses onto rec until ctx is done. Pressing while idle arms
// at once. Releasing within longPress leaves recording on until the next
// press (toggle); holding past longPress stops on release (push-to-talk).
// A press while already recording, from any source, stops on its release.
// Arm failures go to onErr.
func Drive(ctx context.Context, hk Hotkey, rec Recorder, longPress time.Duration, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
		}

		if rec.Recording() {
			if !waitUp(ctx, hk) {
				return
			}
			rec.Disarm()
			continue
		}

		if err := rec.Arm(ctx); err != nil {
			if onErr != nil {
				onErr(err)
			}
			if !waitUp(ctx, hk) {
				return
			}
			continue
		}

		held := time.NewTimer(longPress)
		select {
		case <-ctx.Done():
			held.Stop()
			return
		case <-hk.Keyup():
			held.Stop()
		case <-held.C:
			if !waitUp(ctx, hk) {
				return
			}
			rec.Disarm()
		}
	}
}

func waitUp(ctx context.Context, hk Hotkey) bool {
	select {
	case <-ctx.Done():
		return false
	case <-hk.Keyup():
		return true
	}
}
