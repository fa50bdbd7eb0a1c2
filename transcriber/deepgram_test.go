package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type fakeDeepgram struct {
	srv      *httptest.Server
	auth     chan string
	query    chan url.Values
	received chan frame
	replies  []string
}

// newFakeDeepgram starts a server that reads two client frames, then writes
// replies and closes normally.
func newFakeDeepgram(t *testing.T, replies ...string) *fakeDeepgram {
	t.Helper()
	fd := &fakeDeepgram{
		auth:     make(chan string, 1),
		query:    make(chan url.Values, 1),
		received: make(chan frame, 8),
		replies:  replies,
	}
	fd.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fd.auth <- r.Header.Get("Authorization")
		fd.query <- r.URL.Query()
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for i := 0; i < 2; i++ {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			fd.received <- frame{typ, data}
		}
		for _, msg := range fd.replies {
			if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
		c.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(fd.srv.Close)
	return fd
}

func (fd *fakeDeepgram) endpoint() string {
	return "ws" + strings.TrimPrefix(fd.srv.URL, "http") + "/v1/listen"
}

func TestDeepgramTransport(t *testing.T) {
	fd := newFakeDeepgram(t,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" hello there ","confidence":0.98},{"transcript":"yellow there"}]}}`,
		`{"type":"Metadata","request_id":"abc","duration":1.5}`,
		`{"type":"SpeechStarted","timestamp":0.2}`,
	)

	dial := DialDeepgram(DeepgramOptions{
		Endpoint:    fd.endpoint(),
		SmartFormat: true,
		SampleRate:  16000,
		Channels:    1,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := dial(ctx, Credentials{APIKey: "secret"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	if got := <-fd.auth; got != "Token secret" {
		t.Errorf("Authorization = %q", got)
	}
	q := <-fd.query
	for k, want := range map[string]string{
		"model":        "nova-2",
		"language":     "en-US",
		"smart_format": "true",
		"encoding":     "linear16",
		"sample_rate":  "16000",
		"channels":     "1",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}

	if err := tr.Send([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.KeepAlive(); err != nil {
		t.Fatalf("KeepAlive: %v", err)
	}
	if f := <-fd.received; f.typ != websocket.MessageBinary || len(f.data) != 4 {
		t.Errorf("first frame = %v %v, want 4 binary bytes", f.typ, f.data)
	}
	if f := <-fd.received; f.typ != websocket.MessageText || string(f.data) != `{"type":"KeepAlive"}` {
		t.Errorf("second frame = %v %q, want KeepAlive text", f.typ, f.data)
	}

	ev, err := tr.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := ev.(Fragment); !ok || got.Text != "hello there" || !got.IsFinal {
		t.Errorf("Recv = %#v, want final fragment %q", ev, "hello there")
	}

	ev, err = tr.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := ev.(Metadata); !ok || !strings.Contains(got.Info, `"request_id":"abc"`) {
		t.Errorf("Recv = %#v, want Metadata", ev)
	}

	ev, err = tr.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.(Warning); !ok {
		t.Errorf("Recv = %#v, want Warning", ev)
	}

	ev, err = tr.Recv()
	if err != nil {
		t.Fatalf("Recv after normal close: %v", err)
	}
	if _, ok := ev.(Closed); !ok {
		t.Errorf("Recv = %#v, want Closed", ev)
	}
}

func TestDeepgramDialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	dial := DialDeepgram(DeepgramOptions{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := dial(ctx, Credentials{APIKey: "bad"}); err == nil {
		t.Fatal("dial succeeded against a rejecting server")
	}
}

func TestDeepgramConnEndToEnd(t *testing.T) {
	fd := newFakeDeepgram(t,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"world"}]}}`,
	)
	c, err := Open(context.Background(), DialDeepgram(DeepgramOptions{Endpoint: fd.endpoint()}), testCreds)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, ok := next(t, c).(Opened); !ok {
		t.Fatal("first event is not Opened")
	}
	if err := c.Send(make([]byte, 3200)); err != nil {
		t.Fatal(err)
	}
	if err := c.Send(make([]byte, 3200)); err != nil {
		t.Fatal(err)
	}

	var texts []string
	for _, ev := range drained(t, c) {
		if f, ok := ev.(Fragment); ok {
			texts = append(texts, f.Text)
		}
	}
	if strings.Join(texts, " ") != "hello world" {
		t.Errorf("fragments = %q", texts)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %v, want closed", c.State())
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
	}{
		{"results", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hi"}]}}`, Fragment{Text: "hi", IsFinal: true}},
		{"interim", `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"h"}]}}`, Fragment{Text: "h"}},
		{"no alternatives", `{"type":"Results","channel":{"alternatives":[]}}`, Fragment{}},
		{"metadata", `{"type":"Metadata"}`, Metadata{Info: `{"type":"Metadata"}`}},
		{"unhandled", `{"type":"UtteranceEnd"}`, Warning{Info: `{"type":"UtteranceEnd"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeMessage([]byte(tt.in)); got != tt.want {
				t.Errorf("decodeMessage = %#v, want %#v", got, tt.want)
			}
		})
	}

	t.Run("error", func(t *testing.T) {
		ev, ok := decodeMessage([]byte(`{"type":"Error","description":"bad sample rate"}`)).(ErrorEvent)
		if !ok || !errors.Is(ev.Err, ErrTransport) || !strings.Contains(ev.Err.Error(), "bad sample rate") {
			t.Errorf("got %#v", ev)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, ok := decodeMessage([]byte("not json")).(Warning); !ok {
			t.Error("garbage should decode to a Warning")
		}
	})
}
