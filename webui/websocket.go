package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pixelbatch/core"
	"pixelbatch/generation"
	"pixelbatch/logging"
)

// Broadcaster fans status and image events out to websocket clients.
//
// Each client has a buffered send channel drained by its own write pump,
// which is the only goroutine writing to the connection (pings included).
// A client whose buffer fills up is dropped.
type Broadcaster struct {
	clients   map[*websocket.Conn]*clientInfo
	clientsMu sync.RWMutex

	broadcast chan WSMessage
	upgrader  websocket.Upgrader

	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64
	sendBuffer     int

	// initial builds the snapshot sent to each new client. Optional.
	initial func() InitialData

	log *logging.Logger
}

type clientInfo struct {
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

// BroadcasterConfig holds configuration for the Broadcaster.
type BroadcasterConfig struct {
	// PingInterval is how often to ping clients (default: 30s)
	PingInterval time.Duration

	// PongWait is how long to wait for a pong (default: 60s)
	PongWait time.Duration

	// WriteWait is the time allowed to write a message (default: 10s)
	WriteWait time.Duration

	// MaxMessageSize is the max size of a client message (default: 512 bytes)
	MaxMessageSize int64

	// BroadcastBufferSize is the broadcast queue length (default: 256)
	BroadcastBufferSize int

	// ClientSendBufferSize is the per-client queue length (default: 256)
	ClientSendBufferSize int
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 256,
	}
}

// NewBroadcaster creates a Broadcaster. Zero config fields take defaults.
// Call Start to begin delivering messages.
func NewBroadcaster(config BroadcasterConfig, log *logging.Logger) *Broadcaster {
	def := DefaultBroadcasterConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = def.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = def.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = def.BroadcastBufferSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = def.ClientSendBufferSize
	}
	if log == nil {
		log = logging.NewNop()
	}

	return &Broadcaster{
		clients:        make(map[*websocket.Conn]*clientInfo),
		broadcast:      make(chan WSMessage, config.BroadcastBufferSize),
		pingInterval:   config.PingInterval,
		pongWait:       config.PongWait,
		writeWait:      config.WriteWait,
		maxMessageSize: config.MaxMessageSize,
		sendBuffer:     config.ClientSendBufferSize,
		log:            log.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Served from the same origin as the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetInitialState registers the snapshot builder for new clients. Call it
// before serving connections.
func (b *Broadcaster) SetInitialState(fn func() InitialData) {
	b.initial = fn
}

// Start delivers queued broadcasts until ctx is cancelled, then closes
// every client.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Debug("broadcaster started")
	for {
		select {
		case <-ctx.Done():
			b.closeAllClients()
			b.log.Debug("broadcaster stopped")
			return
		case msg := <-b.broadcast:
			b.broadcastToAll(msg)
		}
	}
}

// HandleConnection upgrades the request and registers the client.
func (b *Broadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	conn.SetReadLimit(b.maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.pongWait))
	})

	b.addClient(conn)
	go b.readPump(conn)
}

// BroadcastMessage queues msg for every client. It never blocks; when the
// queue is full the message is dropped.
func (b *Broadcaster) BroadcastMessage(msg WSMessage) {
	select {
	case b.broadcast <- msg:
	default:
		b.log.Warn("broadcast queue full, dropping message", zap.String("type", msg.Type))
	}
}

// BroadcastStatus forwards a status board write. It has the signature of
// a StatusBoard subscriber.
func (b *Broadcaster) BroadcastStatus(s generation.Status) {
	b.BroadcastMessage(NewStatusMessage(s))
}

// BroadcastImage forwards a freshly stored record.
func (b *Broadcaster) BroadcastImage(rec core.ImageRecord) {
	b.BroadcastMessage(NewImageAddedMessage(rec))
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.closeAllClients()
}

func (b *Broadcaster) addClient(conn *websocket.Conn) {
	info := &clientInfo{
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		send:        make(chan []byte, b.sendBuffer),
	}
	if b.initial != nil {
		if data, err := json.Marshal(NewInitialMessage(b.initial())); err == nil {
			info.send <- data
		}
	}

	b.clientsMu.Lock()
	b.clients[conn] = info
	total := len(b.clients)
	b.clientsMu.Unlock()

	go b.writePump(conn, info.send)
	b.log.Debug("client connected", zap.String("remote_addr", info.remoteAddr), zap.Int("clients", total))
}

// removeClient closes the client's send channel; its write pump then
// sends a close frame and closes the connection. Safe to call twice.
func (b *Broadcaster) removeClient(conn *websocket.Conn) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	info, ok := b.clients[conn]
	if !ok {
		return
	}
	close(info.send)
	delete(b.clients, conn)
	b.log.Debug("client disconnected",
		zap.String("remote_addr", info.remoteAddr),
		zap.Duration("connected_for", time.Since(info.connectedAt)),
		zap.Int("clients", len(b.clients)))
}

func (b *Broadcaster) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("marshal broadcast message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for conn, info := range b.clients {
		select {
		case info.send <- data:
		default:
			b.log.Warn("client send buffer full, dropping client", zap.String("remote_addr", info.remoteAddr))
			go b.removeClient(conn)
		}
	}
}

func (b *Broadcaster) closeAllClients() {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	for conn, info := range b.clients {
		close(info.send)
		delete(b.clients, conn)
	}
}

// readPump discards client messages and keeps the read deadline moving
// via the pong handler. It unregisters the client when reading fails.
func (b *Broadcaster) readPump(conn *websocket.Conn) {
	defer b.removeClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

func (b *Broadcaster) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(b.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(b.writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(b.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
