package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/audio"
	"murmur/beep"
	"murmur/config"
	"murmur/doctor"
	"murmur/engine"
	"murmur/hotkey"
	"murmur/kv"
	"murmur/log"
	"murmur/shutdown"
	"murmur/transcriber"
)

var version = "dev"

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func deepgramOptions(cfg config.Config) transcriber.DeepgramOptions {
	return transcriber.DeepgramOptions{
		Endpoint:    cfg.Deepgram.Endpoint,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		SampleRate:  audio.SampleRate,
		Channels:    audio.Channels,
	}
}

func captureConfig(cfg config.Config) audio.CaptureConfig {
	c := audio.DefaultConfig()
	c.Gain = cfg.Audio.Gain
	return c
}

// openStore falls back to memory so a broken database never blocks recording.
func openStore(ctx context.Context, path string) kv.Store {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warnf("store dir: %v", err)
	}
	s, err := kv.OpenSQLite(ctx, path)
	if err != nil {
		log.Errorf("store open failed, sessions will not be saved: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: could not open %s: %v\n", path, err)
		return kv.NewMemory()
	}
	return s
}

func setupCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// startHotkey binds the global shortcut for the life of ctx. A failed
// registration only costs the shortcut; the TUI keys still work.
func startHotkey(ctx context.Context, eng *engine.Engine, longPress time.Duration) {
	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Warnf("hotkey: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: global hotkey unavailable: %v\n", err)
		return
	}
	go func() {
		<-ctx.Done()
		hk.Unregister()
	}()
	go hotkey.Drive(ctx, hk, eng, longPress, func(err error) {
		log.Errorf("hotkey arm: %v", err)
	})
}

func runDoctor(ctx context.Context, cfg config.Config, audioCtx audio.Context) int {
	var device *audio.DeviceInfo
	if cfg.Audio.Device != "" {
		d, err := audio.FindDevice(audioCtx, cfg.Audio.Device)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		device = d
	}
	store := openStore(ctx, cfg.Store.Path)
	defer store.Close()
	return doctor.Run(ctx, os.Stdout, doctor.Checks(doctor.Env{
		Config: cfg,
		Audio:  audioCtx,
		Device: device,
		Store:  store,
		Dial:   transcriber.DialDeepgram(deepgramOptions(cfg)),
	}))
}

func run() int {
	configFlag := flag.String("config", "", "config file (default: <user config dir>/murmur/config.yaml if present)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	storeFlag := flag.String("store", "", "session database path")
	deviceFlag := flag.String("device", "", "use the microphone whose name contains this text")
	setupFlag := flag.Bool("setup", false, "select microphone device interactively")
	versionFlag := flag.Bool("version", false, "print version and exit")
	testFlag := flag.Bool("test", false, "test mode (headless, stdin-driven): murmur -test <wav-file>")
	noBeepFlag := flag.Bool("nobeep", false, "disable start/stop/error beeps")
	doctorFlag := flag.Bool("doctor", false, "run system diagnostics and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	setupCrashLog()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *storeFlag != "" {
		cfg.Store.Path = *storeFlag
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if *noBeepFlag || !cfg.Beeps {
		beep.Disable()
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	credErr := cfg.Validate()
	if credErr != nil {
		log.Warn(credErr.Error())
	}
	log.SessionStart("deepgram", cfg.Deepgram.Model, credErr == nil)

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			return 1
		}
		return runTestMode(cfg, args[0])
	}

	if credErr != nil {
		fmt.Fprintln(os.Stderr, "Warning: DEEPGRAM_API_KEY is not set; recordings will not be transcribed")
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer audioCtx.Close()

	if *doctorFlag {
		return runDoctor(ctx, cfg, audioCtx)
	}

	var device *audio.DeviceInfo
	switch {
	case *setupFlag:
		device, err = audio.SelectDevice(audioCtx)
		if errors.Is(err, audio.ErrCancelled) {
			return 0
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\nFalling back to default device\n", err)
		}
	case cfg.Audio.Device != "":
		device, err = audio.FindDevice(audioCtx, cfg.Audio.Device)
		if err != nil {
			log.Warnf("device %q: %v", cfg.Audio.Device, err)
			fmt.Fprintf(os.Stderr, "Warning: %v\nFalling back to default device\n", err)
		}
	}

	eng := engine.New(engine.Deps{
		Audio:       audioCtx,
		Store:       openStore(ctx, cfg.Store.Path),
		Dial:        transcriber.DialDeepgram(deepgramOptions(cfg)),
		Credentials: transcriber.Credentials{APIKey: cfg.Deepgram.APIKey},
		Device:      device,
		Capture:     captureConfig(cfg),
		Heartbeat:   cfg.KeepAlive(),
		Cues:        beep.Speaker{},
		AutoStop:    cfg.Audio.AutoStop,
	})
	defer eng.Close()

	if err := eng.Start(ctx); err != nil && !errors.Is(err, transcriber.ErrConfig) {
		log.Errorf("engine start: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	beep.Init()

	if cfg.Hotkey.Enabled {
		startHotkey(ctx, eng, cfg.LongPress())
	}

	p := NewTUIProgram(ctx, eng, tuiInfo{
		device:     deviceLineText(device),
		model:      cfg.Deepgram.Model,
		language:   cfg.Deepgram.Language,
		credential: credErr == nil,
	})
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
