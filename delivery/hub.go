package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/logging"
)

// HubConfig holds connection-level tuning for the Hub.
type HubConfig struct {
	// PingInterval is how often to ping each subscriber
	PingInterval time.Duration

	// PongWait is how long to wait for a pong before dropping
	PongWait time.Duration

	// WriteWait is the per-message write deadline
	WriteWait time.Duration

	// MaxMessageSize bounds inbound client messages
	MaxMessageSize int64

	// SendBufferSize is the per-subscriber outbound buffer
	SendBufferSize int
}

// DefaultHubConfig returns the standard connection tuning.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 512,
		SendBufferSize: 64,
	}
}

// subscriber is one connected listener.
type subscriber struct {
	sessionID   string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
}

// Hub manages WebSocket subscribers keyed by session and broadcasts
// envelopes to each session's listeners. Registration, removal, and
// broadcast all flow through channels into Run's single loop.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*websocket.Conn]*subscriber

	register   chan *subscriber
	unregister chan *subscriber
	outbound   chan Envelope
	done       chan struct{}

	config   HubConfig
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHub creates a Hub. Call Run to start processing.
func NewHub(config HubConfig, logger *logging.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*websocket.Conn]*subscriber),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		outbound:   make(chan Envelope, 256),
		done:       make(chan struct{}),
		config:     config,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment; the extension connects locally
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pingTicker := time.NewTicker(h.config.PingInterval)
	defer pingTicker.Stop()

	h.logger.Info("delivery hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			h.logger.Info("delivery hub stopped")
			return

		case sub := <-h.register:
			h.addSubscriber(sub)

		case sub := <-h.unregister:
			h.removeSubscriber(sub)

		case envelope := <-h.outbound:
			h.broadcast(envelope)

		case <-pingTicker.C:
			h.pingAll()
		}
	}
}

// HandleConnection upgrades an HTTP request into a subscription for
// the given session.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	sub := &subscriber{
		sessionID:   sessionID,
		conn:        conn,
		send:        make(chan []byte, h.config.SendBufferSize),
		connectedAt: time.Now(),
	}
	h.register <- sub

	go h.readPump(sub)
}

// Deliver queues an envelope for the session's listeners. Non-blocking;
// if the hub's buffer is full the envelope is dropped with a warning,
// because delivery is best-effort by contract.
func (h *Hub) Deliver(envelope Envelope) {
	select {
	case h.outbound <- envelope:
	default:
		h.logger.Warn("delivery buffer full, dropping message",
			zap.String("type", envelope.Type),
			logging.SessionField(envelope.SessionID))
	}
}

// BroadcastAll queues an envelope of the given type for every session
// with listeners, stamped per session. Used for periodic health
// payloads that are not tied to one session's activity.
func (h *Hub) BroadcastAll(msgType string, data interface{}) {
	h.mu.RLock()
	sessionIDs := make([]string, 0, len(h.sessions))
	for sessionID := range h.sessions {
		sessionIDs = append(sessionIDs, sessionID)
	}
	h.mu.RUnlock()

	for _, sessionID := range sessionIDs {
		h.Deliver(NewEnvelope(msgType, sessionID, data))
	}
}

// SubscriberCount returns the number of listeners for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// drop hands a subscriber to the unregister channel. After Run has
// exited nothing receives there, so the send races the done signal
// instead of blocking a pump goroutine forever.
func (h *Hub) drop(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

func (h *Hub) addSubscriber(sub *subscriber) {
	h.mu.Lock()
	if h.sessions[sub.sessionID] == nil {
		h.sessions[sub.sessionID] = make(map[*websocket.Conn]*subscriber)
	}
	h.sessions[sub.sessionID][sub.conn] = sub
	total := len(h.sessions[sub.sessionID])
	h.mu.Unlock()

	go h.writePump(sub)

	h.logger.Debug("listener subscribed",
		logging.SessionField(sub.sessionID), zap.Int("listeners", total))
}

func (h *Hub) removeSubscriber(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.sessions[sub.sessionID]
	if _, ok := subs[sub.conn]; !ok {
		return
	}
	close(sub.send)
	delete(subs, sub.conn)
	if len(subs) == 0 {
		delete(h.sessions, sub.sessionID)
	}
	sub.conn.Close()

	h.logger.Debug("listener unsubscribed", logging.SessionField(sub.sessionID))
}

// broadcast fans an envelope out to the session's listeners. A
// listener with a full send buffer is dropped rather than awaited.
func (h *Hub) broadcast(envelope Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("failed to marshal envelope", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.sessions[envelope.SessionID] {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("listener send buffer full, dropping connection",
				logging.SessionField(sub.sessionID))
			go func(s *subscriber) { h.drop(s) }(sub)
		}
	}
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, subs := range h.sessions {
		for _, sub := range subs {
			sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go func(s *subscriber) { h.drop(s) }(sub)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, subs := range h.sessions {
		for conn, sub := range subs {
			close(sub.send)
			conn.Close()
		}
		delete(h.sessions, sessionID)
	}
}

// readPump drains inbound frames to keep pong handling alive. Client
// messages are not processed; the extension only listens.
func (h *Hub) readPump(sub *subscriber) {
	defer h.drop(sub)

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

// writePump serializes writes for one subscriber.
func (h *Hub) writePump(sub *subscriber) {
	defer sub.conn.Close()

	for message := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
	sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
