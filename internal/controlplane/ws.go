package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/plugins"
)

const (
	wsHubPluginID   = "controlplane-ws-hub"
	wsWriteWait     = 10 * time.Second
	wsSendQueueSize = 64
)

// wsFrame is the one-way event stream's frame shape: there is no client
// request/response handshake here, only a server-push feed of plugin
// events for the operator console to render as a live log.
type wsFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// observedEventKinds is every EventKind the hub subscribes to at boot. Kept
// as a literal list rather than wildcarding so a new internal-only event
// kind doesn't leak to the console without a deliberate decision.
var observedEventKinds = []model.EventKind{
	model.EventPersonMessageReceived,
	model.EventGroupMessageReceived,
	model.EventNormalMessageResponded,
	model.EventSessionFirstMessage,
	model.EventSessionExpired,
	model.EventSessionReset,
	model.EventStageBefore,
	model.EventStageAfter,
	model.EventUnhandledException,
}

// eventHub is an http.Handler serving the /ws route: each accepted
// connection is registered as a fan-out target, and one plugin listener per
// observed event kind pushes a wsFrame to every connection.
type eventHub struct {
	host     *plugins.Host
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newEventHub(host *plugins.Host, logger *slog.Logger) *eventHub {
	return &eventHub{
		host:    host,
		logger:  logger.With("component", "ws-hub"),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// start registers the hub's listeners with the plugin host. Safe to call
// once; Server.Start owns the call site.
func (h *eventHub) start(context.Context) {
	for _, kind := range observedEventKinds {
		h.host.Register(wsHubPluginID, kind, 0, h.forward)
	}
}

func (h *eventHub) stop() {
	h.host.Unregister(wsHubPluginID)
	h.mu.Lock()
	defer h.mu.Unlock()
	// Closing the conn unblocks each connection's readLoop; its ServeHTTP
	// defer then deregisters the client and closes its send queue.
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *eventHub) forward(ctx context.Context, evt *model.Event) error {
	frame := wsFrame{Type: "event", Event: string(evt.Kind), Payload: evt.Payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	h.broadcast(data)
	return nil
}

func (h *eventHub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event for slow websocket client")
		}
	}
}

func (h *eventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendQueueSize)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		close(client.send)
		_ = conn.Close()
	}()

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop only drains and discards frames; the hub doesn't accept
// commands over the socket. It exists so a closed connection is detected
// promptly via the read error.
func (h *eventHub) readLoop(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) writeLoop(c *wsClient) {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
