package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/config"
	"murmur/engine"
	"murmur/log"
	"murmur/session"
	"murmur/transcriber"
)

const waitTextTimeout = 10 * time.Second

// echoWords is what the offline transport "hears", one word per echoEvery chunks.
var echoWords = strings.Fields("the quick brown fox jumps over the lazy dog")

const echoEvery = 3

// runTestMode drives the engine from stdin with a WAV file standing in for the
// microphone. Without DEEPGRAM_API_KEY it transcribes with an offline echo
// transport so the full pipeline still runs.
func runTestMode(cfg config.Config, wavPath string) int {
	beep.Disable()

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	deps := engine.Deps{
		Audio:       fakeCtx,
		Store:       openStore(context.Background(), cfg.Store.Path),
		Dial:        transcriber.DialDeepgram(deepgramOptions(cfg)),
		Credentials: transcriber.Credentials{APIKey: cfg.Deepgram.APIKey},
		Capture:     captureConfig(cfg),
		Heartbeat:   cfg.KeepAlive(),
		AutoStop:    cfg.Audio.AutoStop,
	}
	if cfg.Validate() != nil {
		fake := transcriber.NewFakeTransport()
		fake.EchoEvery = echoEvery
		fake.EchoWords = echoWords
		deps.Dial = fake.Dialer()
		deps.Credentials.APIKey = "offline"
		log.Info("test mode: offline echo transport")
	}

	eng := engine.New(deps)
	defer eng.Close()
	if err := eng.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := drive(eng, fakeCtx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// drive runs one command per line until QUIT or end of input.
//
//	ARM | DISARM | NEW | SELECT <index> | WAIT_OPEN | WAIT_AUDIO_DONE
//	WAIT_TEXT | SLEEP <ms> | DUMP | QUIT
func drive(eng *engine.Engine, fakeCtx *audio.FakeContext, in io.Reader, out io.Writer) error {
	ctx := context.Background()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, arg := fields[0], ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		switch cmd {
		case "ARM":
			if err := eng.Arm(ctx); err != nil {
				log.Errorf("recording error: %v", err)
				fmt.Fprintf(out, "ERROR %v\n", err)
			}
		case "DISARM":
			eng.Disarm()
		case "NEW":
			fmt.Fprintf(out, "GROUP %s\n", eng.CreateGroup())
		case "SELECT":
			i, err := strconv.Atoi(arg)
			groups := eng.Snapshot().Groups
			if err != nil || i < 0 || i >= len(groups) {
				fmt.Fprintf(out, "ERROR bad index %q\n", arg)
				continue
			}
			eng.Select(groups[i].ID)
		case "WAIT_OPEN":
			if !waitUntil(eng, func(s engine.Snapshot) bool { return s.Connection != transcriber.StateConnecting }) {
				return errors.New("timed out waiting for connection")
			}
		case "WAIT_AUDIO_DONE":
			if c := fakeCtx.Last(); c != nil {
				<-c.AudioDone()
			}
		case "WAIT_TEXT":
			if !waitUntil(eng, func(s engine.Snapshot) bool {
				if s.Selected == nil {
					return false
				}
				u, ok := s.Selected.Last()
				return ok && u.Text != ""
			}) {
				return errors.New("timed out waiting for text")
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "DUMP":
			data, err := session.Encode(eng.Snapshot().Groups)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "GROUPS %s\n", data)
		case "QUIT":
			return nil
		default:
			fmt.Fprintf(out, "ERROR unknown command %q\n", cmd)
		}
	}
	return scanner.Err()
}

func waitUntil(eng *engine.Engine, cond func(engine.Snapshot) bool) bool {
	deadline := time.After(waitTextTimeout)
	for !cond(eng.Snapshot()) {
		select {
		case <-eng.Changes():
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			return false
		}
	}
	return true
}
