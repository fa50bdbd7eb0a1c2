// Package audio opens microphones and delivers 16-bit little-endian PCM
// through a callback.
package audio

import (
	"errors"
	"os"
	"strings"
	"time"
)

const (
	SampleRate     = 16000
	Channels       = 1
	BitsPerSample  = 16
	BytesPerSample = BitsPerSample / 8
	BytesPerSecond = SampleRate * Channels * BytesPerSample

	WAVHeaderSize = 44
)

var (
	ErrAccessDenied = errors.New("audio: microphone access denied")
	ErrNoDevices    = errors.New("audio: no capture devices found")
	ErrCancelled    = errors.New("audio: device selection cancelled")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", "(bt)", "[bt]", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a Bluetooth headset,
// which usually means narrowband capture.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BytesFor returns the PCM size of d at the capture format.
func BytesFor(d time.Duration) int {
	return int(int64(BytesPerSecond) * int64(d) / int64(time.Second))
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain multiplies samples before delivery; zero means unity.
	Gain int
}

// DefaultConfig is the format the transcription stream expects.
func DefaultConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	// Start begins delivery. Errors wrap ErrAccessDenied when the platform
	// refused the microphone.
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// classify maps backend start errors onto ErrAccessDenied where possible.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrAccessDenied) {
		return err
	}
	if errors.Is(err, os.ErrPermission) {
		return errors.Join(ErrAccessDenied, err)
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"access denied", "permission denied", "not authorized", "accessdenied"} {
		if strings.Contains(msg, s) {
			return errors.Join(ErrAccessDenied, err)
		}
	}
	return err
}

func applyGain(s int16, gain int) int16 {
	if gain <= 1 {
		return s
	}
	v := int32(s) * int32(gain)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
