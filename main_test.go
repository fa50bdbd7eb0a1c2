package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/audio"
	"murmur/config"
	"murmur/engine"
	"murmur/internal/tick"
	"murmur/kv"
	"murmur/session"
	"murmur/transcriber"
)

func newTestEngine(t *testing.T, fakeCtx *audio.FakeContext) *engine.Engine {
	t.Helper()
	tr := transcriber.NewFakeTransport()
	tr.EchoEvery = 1
	tr.EchoWords = []string{"alpha", "beta"}
	eng := engine.New(engine.Deps{
		Audio:          fakeCtx,
		Store:          kv.NewMemory(),
		Dial:           tr.Dialer(),
		Credentials:    transcriber.Credentials{APIKey: "k"},
		HeartbeatTicks: tick.NewManual().Factory(),
		TimerTicks:     tick.NewManual().Factory(),
	})
	t.Cleanup(func() { eng.Close() })
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestDriveScript(t *testing.T) {
	fakeCtx := audio.NewFakePCM(make([]byte, 2*3200), false)
	eng := newTestEngine(t, fakeCtx)

	script := strings.Join([]string{
		"WAIT_OPEN",
		"ARM",
		"WAIT_AUDIO_DONE",
		"WAIT_TEXT",
		"DISARM",
		"NEW",
		"SELECT 1",
		"BOGUS",
		"DUMP",
		"QUIT",
		"ARM",
	}, "\n")
	var out bytes.Buffer
	if err := drive(eng, fakeCtx, strings.NewReader(script), &out); err != nil {
		t.Fatalf("drive() = %v\n%s", err, out.String())
	}

	text := out.String()
	if !strings.Contains(text, "GROUP ") {
		t.Errorf("no GROUP line in %q", text)
	}
	if !strings.Contains(text, `ERROR unknown command "BOGUS"`) {
		t.Errorf("unknown command not reported: %q", text)
	}
	if eng.Snapshot().Armed {
		t.Error("commands after QUIT were run")
	}

	var dump string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "GROUPS ") {
			dump = strings.TrimPrefix(line, "GROUPS ")
		}
	}
	groups, err := session.Decode([]byte(dump))
	if err != nil {
		t.Fatalf("Decode(%q) = %v", dump, err)
	}
	// Decode drops the new empty group
	if len(groups) != 1 || !strings.HasPrefix(groups[0].Utterances[0].Text, "alpha") {
		t.Errorf("groups = %+v", groups)
	}
	s := eng.Snapshot()
	if s.Selected == nil || s.Selected.ID != groups[0].ID {
		t.Errorf("SELECT 1 did not select the older group")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "", 10, []string{""}},
		{"fits", "hello", 10, []string{"hello"}},
		{"split on space", "hello big world", 10, []string{"hello big", "world"}},
		{"long word", "abcdefghijkl", 5, []string{"abcde", "fghij", "kl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestGroupTitle(t *testing.T) {
	if got := groupTitle(session.Group{}); got != "New session" {
		t.Errorf("empty = %q", got)
	}
	g := session.Group{Utterances: []session.Utterance{{Text: ""}, {Text: "hello there"}}}
	if got := groupTitle(g); got != "hello there" {
		t.Errorf("title = %q", got)
	}
	long := session.Group{Utterances: []session.Utterance{{Text: strings.Repeat("x", 100)}}}
	if got := []rune(groupTitle(long)); len(got) != previewRune {
		t.Errorf("long title has %d runes, want %d", len(got), previewRune)
	}
}

func TestConnectionBadge(t *testing.T) {
	if !strings.Contains(connectionBadge(transcriber.StateOpen, false), "no API key") {
		t.Error("missing credential not shown")
	}
	tests := map[transcriber.State]string{
		transcriber.StateOpen:       "connected",
		transcriber.StateConnecting: "connecting",
		transcriber.StateErrored:    "error",
		transcriber.StateClosed:     "disconnected",
	}
	for s, want := range tests {
		if got := connectionBadge(s, true); !strings.Contains(got, want) {
			t.Errorf("badge(%v) = %q, want %q", s, got, want)
		}
	}
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTUIKeys(t *testing.T) {
	fakeCtx := audio.NewFakePCM(nil, false)
	eng := newTestEngine(t, fakeCtx)
	m := newTUIModel(context.Background(), eng, tuiInfo{credential: true})

	next, _ := m.Update(key("n"))
	m = next.(tuiModel)
	if len(m.snap.Groups) != 2 || m.selectedIndex() != 0 {
		t.Fatalf("after n: groups=%d selected=%d", len(m.snap.Groups), m.selectedIndex())
	}

	next, _ = m.Update(key("j"))
	m = next.(tuiModel)
	if m.selectedIndex() != 1 {
		t.Errorf("after j: selected=%d", m.selectedIndex())
	}
	next, _ = m.Update(key("j"))
	m = next.(tuiModel)
	if m.selectedIndex() != 1 {
		t.Errorf("j past the end moved to %d", m.selectedIndex())
	}
	next, _ = m.Update(key("k"))
	m = next.(tuiModel)
	if m.selectedIndex() != 0 {
		t.Errorf("after k: selected=%d", m.selectedIndex())
	}

	next, cmd := m.Update(key(" "))
	m = next.(tuiModel)
	if cmd == nil || !m.busy {
		t.Fatal("space did not start a toggle")
	}
	next, _ = m.Update(cmd())
	m = next.(tuiModel)
	if !m.snap.Armed || m.busy {
		t.Fatalf("after toggle: armed=%v busy=%v", m.snap.Armed, m.busy)
	}

	next, _ = m.Update(key("n"))
	m = next.(tuiModel)
	if len(m.snap.Groups) != 2 || m.flash == "" {
		t.Error("new group created while recording")
	}

	m.width, m.height = 100, 30
	if v := m.View(); !strings.Contains(v, "REC 00:00") {
		t.Errorf("view has no REC indicator:\n%s", v)
	}

	next, cmd = m.Update(key(" "))
	m = next.(tuiModel)
	next, _ = m.Update(cmd())
	m = next.(tuiModel)
	if m.snap.Armed {
		t.Error("second toggle did not disarm")
	}

	_, cmd = m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestDeviceLineText(t *testing.T) {
	if got := deviceLineText(nil); got != "mic: system default" {
		t.Errorf("nil device = %q", got)
	}
	if got := deviceLineText(&audio.DeviceInfo{Name: "AirPods Pro"}); !strings.HasSuffix(got, "(BT!)") {
		t.Errorf("bluetooth device = %q", got)
	}
}

func TestDeepgramOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Deepgram.Model = "nova-3"
	o := deepgramOptions(cfg)
	if o.Model != "nova-3" || o.Language != "en-US" || !o.SmartFormat {
		t.Errorf("options = %+v", o)
	}
	if o.SampleRate != audio.SampleRate || o.Channels != audio.Channels {
		t.Errorf("format = %d/%d", o.SampleRate, o.Channels)
	}
}
