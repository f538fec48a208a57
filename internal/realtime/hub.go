package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Events sent by the hub itself.
const (
	EventViewers  = "viewers"
	EventSnapshot = "results"
)

// ViewerChangeHandler is called when the number of local viewers of an opin changes.
type ViewerChangeHandler func(opinID uuid.UUID, count int)

// Hub maintains opin_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: events are published to Redis and
// the per-room subscription delivers them to local clients.
type Hub struct {
	// opinID -> map[clientID]*Client
	rooms     map[uuid.UUID]map[string]*Client
	subs      map[uuid.UUID]func() // cancel Redis subscription per opin
	mu        sync.RWMutex
	logger    *zap.Logger
	redis     RedisPublisher
	redisSub  RedisSubscriber
	onViewers ViewerChangeHandler
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishOpinEvent(opinID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to opin channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeOpin(opinID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis arguments may be nil for a
// single-instance deployment.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetViewerChangeHandler sets the callback for viewer count changes.
func (h *Hub) SetViewerChangeHandler(fn ViewerChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onViewers = fn
}

// Register adds a client to an opin room. Starts the Redis subscription for the opin if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.OpinID] == nil {
		h.rooms[c.OpinID] = make(map[string]*Client)
		if h.redisSub != nil {
			opinID := c.OpinID
			cancel, err := h.redisSub.SubscribeOpin(opinID, func(event string, payload []byte) {
				h.BroadcastToOpin(opinID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.String("opin_id", opinID.String()), zap.Error(err))
			} else {
				h.subs[opinID] = cancel
			}
		}
	}
	h.rooms[c.OpinID][c.ID] = c
	count := len(h.rooms[c.OpinID])
	onViewers := h.onViewers
	h.mu.Unlock()
	if onViewers != nil {
		onViewers(c.OpinID, count)
	}
	h.logger.Debug("client joined opin", zap.String("client_id", c.ID), zap.String("opin_id", c.OpinID.String()))
}

// Unregister removes a client from an opin room. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.rooms[c.OpinID]; ok {
		if _, member := m[c.ID]; member {
			delete(m, c.ID)
			close(c.send)
		}
		count = len(m)
		if count == 0 {
			delete(h.rooms, c.OpinID)
			if cancel, ok := h.subs[c.OpinID]; ok {
				cancel()
				delete(h.subs, c.OpinID)
			}
		}
	}
	onViewers := h.onViewers
	h.mu.Unlock()
	if onViewers != nil {
		onViewers(c.OpinID, count)
	}
	h.logger.Debug("client left opin", zap.String("client_id", c.ID), zap.String("opin_id", c.OpinID.String()))
}

// BroadcastToOpin sends a message to all clients watching an opin (local only).
func (h *Hub) BroadcastToOpin(opinID uuid.UUID, event string, payload interface{}) {
	msg, err := message(event, payload)
	if err != nil {
		h.logger.Warn("marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[opinID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToOpinAndPublish delivers an event to every instance. With Redis
// the room subscription performs the local delivery, so a subscribed room is
// not broadcast to directly.
func (h *Hub) BroadcastToOpinAndPublish(opinID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	_, subscribed := h.subs[opinID]
	h.mu.RUnlock()
	if !subscribed {
		h.BroadcastToOpin(opinID, event, json.RawMessage(data))
	}
	if h.redis != nil {
		if err := h.redis.PublishOpinEvent(opinID, event, data); err != nil {
			h.logger.Warn("redis publish failed", zap.String("opin_id", opinID.String()), zap.Error(err))
		}
	}
}

// ViewerCount returns the number of local clients watching an opin.
func (h *Hub) ViewerCount(opinID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[opinID])
}

// SendToClient sends a message to a single client of an opin room.
func (h *Hub) SendToClient(opinID uuid.UUID, clientID string, event string, payload interface{}) {
	msg, err := message(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.rooms[opinID][clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func message(event string, payload interface{}) (WSMessage, error) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return WSMessage{}, err
		}
	}
	return WSMessage{Event: event, Data: data}, nil
}
