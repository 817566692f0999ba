package transport

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jpillora/sizestr"
	"github.com/sammck-go/comlink/comlink"
)

// WebSocketEndpoint adapts a *websocket.Conn into a comlink.Endpoint,
// tied to the connection and the origin recorded from its HTTP upgrade
// request. It embeds ShutdownHelper so an explicit Close, a read error,
// and a remote hangup all funnel into one HandleOnceShutdown.
type WebSocketEndpoint struct {
	comlink.ShutdownHelper
	conn   *websocket.Conn
	origin string

	handlers []comlink.MessageHandler

	startOnce sync.Once

	// BytesSent and BytesReceived track cumulative payload size across the
	// endpoint's lifetime, reported in human units via sizestr for debug
	// logging.
	BytesSent     int64
	BytesReceived int64
}

// NewWebSocketEndpoint wraps conn. origin is the value to report on every
// InboundMessage (the exposer's allow-list checks this), typically the
// "Origin" header observed during the HTTP upgrade.
func NewWebSocketEndpoint(conn *websocket.Conn, origin string) *WebSocketEndpoint {
	w := &WebSocketEndpoint{conn: conn, origin: origin}
	w.InitShutdownHelper(comlink.NewLogger("ws-endpoint", comlink.LogLevelWarning), w)
	return w
}

// Start begins the read loop that delivers inbound frames to listeners. It
// is idempotent, matching the Starter capability comlink probes for before
// first use.
func (w *WebSocketEndpoint) Start() error {
	w.startOnce.Do(func() {
		go w.readLoop()
	})
	return nil
}

func (w *WebSocketEndpoint) readLoop() {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.StartShutdown(err)
			return
		}
		w.BytesReceived += int64(len(data))
		w.Lock.Lock()
		handlers := append([]comlink.MessageHandler(nil), w.handlers...)
		w.Lock.Unlock()
		msg := comlink.InboundMessage{Data: data, Origin: w.origin}
		for _, h := range handlers {
			h(msg)
		}
	}
}

// HandleOnceShutdown implements comlink.OnceShutdownHandler: closes the
// underlying connection, ending the read loop. Runs exactly once whether
// shutdown came from Close, a read error, or a parent's AddShutdownChild.
func (w *WebSocketEndpoint) HandleOnceShutdown(completionErr error) error {
	err := w.conn.Close()
	if completionErr == nil {
		completionErr = err
	}
	w.DLogf("shut down, %s", w.DebugSizeSummary())
	return completionErr
}

// Post writes data as a single WebSocket text frame. transferables are
// ignored: a WebSocket connection has no platform transfer-list mechanism,
// so values marked for transfer are simply copied across like everything
// else.
func (w *WebSocketEndpoint) Post(data []byte, _ []comlink.Transferable) error {
	w.BytesSent += int64(len(data))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocketEndpoint) Listen(h comlink.MessageHandler) {
	w.Lock.Lock()
	defer w.Lock.Unlock()
	w.handlers = append(w.handlers, h)
}

func (w *WebSocketEndpoint) Unlisten(h comlink.MessageHandler) {
	w.Lock.Lock()
	defer w.Lock.Unlock()
	for i, existing := range w.handlers {
		if funcEqual(existing, h) {
			w.handlers = append(w.handlers[:i], w.handlers[i+1:]...)
			return
		}
	}
}

// DebugSizeSummary reports cumulative bytes sent/received in human units
// for debug log lines.
func (w *WebSocketEndpoint) DebugSizeSummary() string {
	return "sent=" + sizestr.ToString(w.BytesSent) + " received=" + sizestr.ToString(w.BytesReceived)
}
