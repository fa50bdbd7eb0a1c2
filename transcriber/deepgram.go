package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

const (
	DeepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	DeepgramModel    = "nova-2"
	DeepgramLanguage = "en-US"

	readLimit = 1 << 20
)

var (
	keepAliveMsg   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMsg = []byte(`{"type":"CloseStream"}`)
)

type DeepgramOptions struct {
	Endpoint    string
	Model       string
	Language    string
	SmartFormat bool
	SampleRate  int
	Channels    int
}

func (o DeepgramOptions) url() (string, error) {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = DeepgramEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	model := o.Model
	if model == "" {
		model = DeepgramModel
	}
	q.Set("model", model)
	lang := o.Language
	if lang == "" {
		lang = DeepgramLanguage
	}
	q.Set("language", lang)
	q.Set("smart_format", strconv.FormatBool(o.SmartFormat))
	q.Set("encoding", "linear16")
	if o.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(o.SampleRate))
	}
	if o.Channels > 0 {
		q.Set("channels", strconv.Itoa(o.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialDeepgram returns a Dialer for the Deepgram live transcription API.
func DialDeepgram(opts DeepgramOptions) Dialer {
	return func(ctx context.Context, creds Credentials) (Transport, error) {
		endpoint, err := opts.url()
		if err != nil {
			return nil, fmt.Errorf("%w: endpoint: %v", ErrConfig, err)
		}

		headers := http.Header{}
		headers.Set("Authorization", "Token "+creds.APIKey)

		conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(readLimit)

		// The stream outlives the dial context.
		streamCtx, cancel := context.WithCancel(context.Background())
		return &deepgramTransport{conn: conn, ctx: streamCtx, cancel: cancel}, nil
	}
}

type deepgramTransport struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (t *deepgramTransport) Send(pcm []byte) error {
	return t.conn.Write(t.ctx, websocket.MessageBinary, pcm)
}

func (t *deepgramTransport) KeepAlive() error {
	return t.conn.Write(t.ctx, websocket.MessageText, keepAliveMsg)
}

func (t *deepgramTransport) CloseStream() error {
	return t.conn.Write(t.ctx, websocket.MessageText, closeStreamMsg)
}

func (t *deepgramTransport) Recv() (Event, error) {
	_, data, err := t.conn.Read(t.ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return Closed{}, nil
		}
		return nil, err
	}
	return decodeMessage(data), nil
}

func (t *deepgramTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close(websocket.StatusNormalClosure, "")
		t.cancel()
	})
	return t.closeErr
}

type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// decodeMessage maps one server message to an event. Only the first
// alternative's transcript is used; everything else goes to the logs.
func decodeMessage(data []byte) Event {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Warning{Info: fmt.Sprintf("undecodable message: %v", err)}
	}
	switch msg.Type {
	case "Results":
		var text string
		if len(msg.Channel.Alternatives) > 0 {
			text = strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		}
		return Fragment{Text: text, IsFinal: msg.IsFinal}
	case "Metadata":
		return Metadata{Info: string(data)}
	case "Error":
		reason := msg.Description
		if reason == "" {
			reason = msg.Message
		}
		if reason == "" {
			reason = "unknown error"
		}
		return ErrorEvent{Err: fmt.Errorf("%w: %s", ErrTransport, reason)}
	}
	return Warning{Info: string(data)}
}
