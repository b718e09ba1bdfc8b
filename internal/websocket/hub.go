package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier resolves a session token to the session it grants.
type TokenVerifier interface {
	ParseSessionToken(token string) (uuid.UUID, error)
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans session updates out to websocket clients. With Redis, updates
// travel over session_updates:<id> so every instance sees them.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	redisClient *redis.Client // nil: deliver in-process only
	verifier    TokenVerifier
	subs        map[uuid.UUID]*subscription
	log         *logger.Logger
}

func NewHub(redisClient *redis.Client, verifier TokenVerifier, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		redisClient: redisClient,
		verifier:    verifier,
		subs:        make(map[uuid.UUID]*subscription),
		log:         log.With("component", "ws_hub"),
	}
}

func channelName(sessionID uuid.UUID) string {
	return "session_updates:" + sessionID.String()
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := h.verifier.ParseSessionToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if want := r.URL.Query().Get("session_id"); want != "" && want != sessionID.String() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	h.registerConnection(sessionID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(sessionID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// subscription is the Redis forwarder for one watched session.
type subscription struct {
	cancel context.CancelFunc
}

func (h *Hub) registerConnection(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	h.connections[sessionID] = append(h.connections[sessionID], c)
	total := len(h.connections[sessionID])

	var sub *subscription
	var ctx context.Context
	if h.redisClient != nil && h.subs[sessionID] == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		sub = &subscription{cancel: cancel}
		h.subs[sessionID] = sub
	}
	h.mu.Unlock()

	// First watcher of this session subscribes before its handler returns, so
	// its own later updates are not missed.
	if sub != nil {
		h.subscribe(ctx, sessionID, sub)
	}

	h.log.Info("websocket connected", "session_id", sessionID, "total", total)
}

func (h *Hub) subscribe(ctx context.Context, sessionID uuid.UUID, sub *subscription) {
	pubsub := h.redisClient.Subscribe(ctx, channelName(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Error("redis subscribe failed", "session_id", sessionID, "error", err)
		pubsub.Close()
		sub.cancel()

		h.mu.Lock()
		if h.subs[sessionID] == sub {
			delete(h.subs, sessionID)
		}
		h.mu.Unlock()
		return
	}
	// Returns at once when every watcher left during the subscribe.
	go h.forward(ctx, sessionID, pubsub)
}

func (h *Hub) unregisterConnection(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if sub, ok := h.subs[sessionID]; ok {
			sub.cancel()
			delete(h.subs, sessionID)
		}
	}

	h.log.Info("websocket disconnected", "session_id", sessionID)
}

func (h *Hub) forward(ctx context.Context, sessionID uuid.UUID, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.log.Debug("websocket write failed", "session_id", sessionID, "error", err)
		}
	}
}

// PublishSession delivers msg to every client watching sessionID.
func (h *Hub) PublishSession(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode websocket message", "type", msg.Type, "error", err)
		return
	}

	if h.redisClient != nil {
		err := h.redisClient.Publish(ctx, channelName(sessionID), data).Err()
		if err == nil {
			return
		}
		h.log.Warn("redis publish failed, delivering locally", "session_id", sessionID, "error", err)
	}
	h.broadcast(sessionID, data)
}

// Connections reports how many clients watch sessionID on this instance.
func (h *Hub) Connections(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}
