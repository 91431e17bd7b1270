// Package channel provides the WebSocket signaling channel used by the viewer.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/piviewer/internal/signaling"
	"github.com/1ureka/piviewer/internal/util"
)

const (
	defaultMaxMessageBytes = 1 << 20 // SDP offers with many candidates stay well below this
	defaultWriteTimeout    = 5 * time.Second
	closeGracePeriod       = time.Second
)

// Options tunes a WS channel. Zero values select the defaults.
type Options struct {
	Header          http.Header
	MaxMessageBytes int64
	WriteTimeout    time.Duration
}

// WS is a signaling.Channel backed by a gorilla/websocket client connection.
// Both text and binary frames are delivered to OnMessage as raw bytes.
type WS struct {
	url  string
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	closing   bool
	onOpen    func()
	onMessage func([]byte)
	onClose   func(error)

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ signaling.Channel = (*WS)(nil)

// NewWS creates an unconnected channel for the given ws:// or wss:// URL.
func NewWS(url string, opts Options) *WS {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &WS{url: url, opts: opts}
}

func (w *WS) OnOpen(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onOpen = fn
}

func (w *WS) OnMessage(fn func(data []byte)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMessage = fn
}

func (w *WS) OnClose(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClose = fn
}

// Connect dials the server, fires OnOpen and starts the read loop.
func (w *WS) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return &signaling.ChannelError{Op: "connect", Err: signaling.ErrNotOpen}
	}
	if w.conn != nil {
		w.mu.Unlock()
		return &signaling.ChannelError{Op: "connect", Err: errors.New("already connected")}
	}
	w.mu.Unlock()

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, w.url, w.opts.Header)
	if err != nil {
		return &signaling.ChannelError{Op: "connect", Err: fmt.Errorf("failed to connect to WS server: %w", err)}
	}
	conn.SetReadLimit(w.opts.MaxMessageBytes)

	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		conn.Close()
		return &signaling.ChannelError{Op: "connect", Err: signaling.ErrNotOpen}
	}
	w.conn = conn
	onOpen := w.onOpen
	w.mu.Unlock()

	util.LogDebug("signaling channel connected to %s", w.url)
	if onOpen != nil {
		onOpen()
	}

	go w.readLoop(conn)
	return nil
}

func (w *WS) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.finish(conn, err)
			return
		}

		w.mu.Lock()
		onMessage := w.onMessage
		w.mu.Unlock()
		if onMessage != nil {
			onMessage(data)
		}
	}
}

// finish runs once, when the read loop ends. A normal close or a close we
// initiated is reported as a nil error.
func (w *WS) finish(conn *websocket.Conn, err error) {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		local := w.closing
		w.closing = true
		w.conn = nil
		onClose := w.onClose
		w.mu.Unlock()

		conn.Close()

		if local || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			err = nil
		} else {
			err = &signaling.ChannelError{Op: "read", Err: err}
		}
		if onClose != nil {
			onClose(err)
		}
	})
}

// Send writes one text frame. It fails with signaling.ErrNotOpen when the
// channel is not connected and gives up after the write timeout.
func (w *WS) Send(data []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return &signaling.ChannelError{Op: "send", Err: signaling.ErrNotOpen}
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &signaling.ChannelError{Op: "send", Err: err}
	}
	return nil
}

// Close sends a close frame and shuts the connection. OnClose fires from the
// read loop with a nil error.
func (w *WS) Close() error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return &signaling.ChannelError{Op: "close", Err: err}
	}
	return nil
}
