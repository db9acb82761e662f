// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "rtfft/internal/log"
	"rtfft/internal/params"
)

const writeTimeout = 2 * time.Second

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) writePrepared(pm *websocket.PreparedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WritePreparedMessage(pm)
}

// WebSocketTransport broadcasts snapshots as JSON Messages to every client
// connected on /ws and applies Commands received from them through a Writer.
// Array parameters are rate limited to one message per minInterval each.
type WebSocketTransport struct {
	addr        string
	writer      Writer
	minInterval time.Duration

	upgrader  websocket.Upgrader
	clients   map[*wsClient]struct{}
	clientsMu sync.Mutex

	broadcast chan Message
	lastSent  map[string]time.Time // dispatcher goroutine only
	dropped   atomic.Uint64

	server   *http.Server
	listener net.Listener
	done     chan struct{}
	closed   atomic.Bool
}

// NewWebSocketTransport creates the transport. writer may be nil, in which
// case inbound commands are rejected.
func NewWebSocketTransport(addr string, minInterval time.Duration, writer Writer) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr:        addr,
		writer:      writer,
		minInterval: minInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan Message, 256),
		lastSent:  make(map[string]time.Time),
		done:      make(chan struct{}),
	}

	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving /ws.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// Start binds addr and serves in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.listener = ln
	wst.server = &http.Server{Handler: wst.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		applog.Infof("WebSocketTransport: Serving on %s/ws", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (wst *WebSocketTransport) Addr() net.Addr {
	if wst.listener == nil {
		return nil
	}
	return wst.listener.Addr()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}
	client := &wsClient{conn: conn}

	wst.clientsMu.Lock()
	wst.clients[client] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client %s connected, total: %d", conn.RemoteAddr(), total)

	go wst.readCommands(client)
}

// readCommands applies inbound writes until the client goes away.
func (wst *WebSocketTransport) readCommands(c *wsClient) {
	defer wst.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Param == "" {
			_ = c.writeJSON(map[string]string{"error": "malformed command"})
			continue
		}
		if err := wst.apply(cmd); err != nil {
			_ = c.writeJSON(map[string]string{"param": cmd.Param, "error": err.Error()})
		}
	}
}

func (wst *WebSocketTransport) apply(cmd Command) error {
	if wst.writer == nil {
		return errors.New("parameter writes are disabled")
	}
	return wst.writer.Write(cmd.Param, cmd.Value)
}

func (wst *WebSocketTransport) drop(c *wsClient) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[c]
	delete(wst.clients, c)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	c.conn.Close()
	if ok {
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// Publish queues s for broadcast. It never blocks the dispatcher.
func (wst *WebSocketTransport) Publish(s *params.Snapshot) {
	if wst.closed.Load() {
		return
	}
	if s.Kind != params.KindInt && wst.minInterval > 0 {
		if last, ok := wst.lastSent[s.Name]; ok && s.Time.Sub(last) < wst.minInterval {
			return
		}
		wst.lastSent[s.Name] = s.Time
	}

	select {
	case wst.broadcast <- NewMessage(s):
	default:
		wst.dropped.Add(1)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case msg := <-wst.broadcast:
			// An unencodable message is skipped. Clients stay connected.
			data, err := json.Marshal(msg)
			if err != nil {
				applog.Warnf("WebSocketTransport: Cannot encode %s #%d: %v", msg.Param, msg.Seq, err)
				continue
			}
			pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
			if err != nil {
				applog.Warnf("WebSocketTransport: Cannot prepare %s #%d: %v", msg.Param, msg.Seq, err)
				continue
			}

			wst.clientsMu.Lock()
			clients := make([]*wsClient, 0, len(wst.clients))
			for c := range wst.clients {
				clients = append(clients, c)
			}
			wst.clientsMu.Unlock()

			for _, c := range clients {
				if err := c.writePrepared(pm); err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					wst.drop(c)
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns the number of messages lost to a full broadcast queue.
func (wst *WebSocketTransport) Dropped() uint64 {
	return wst.dropped.Load()
}

// Close disconnects all clients and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	if wst.closed.Swap(true) {
		return nil
	}
	applog.Infof("WebSocketTransport: Closing (dropped messages: %d)", wst.dropped.Load())
	close(wst.done)

	wst.clientsMu.Lock()
	for c := range wst.clients {
		c.conn.Close()
	}
	clear(wst.clients)
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

var _ Transport = (*WebSocketTransport)(nil)
