package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/middleware"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/response"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Snapshot is the live results state sent to a client when it connects.
// It never carries voter identities.
type Snapshot struct {
	OpinID     uuid.UUID         `json:"opin_id"`
	Status     models.OpinStatus `json:"status"`
	Votes      models.Tally      `json:"votes"`
	TotalVotes int               `json:"total_votes"`
}

// Authenticator validates a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// LinkResolver finds the opin behind a share link.
type LinkResolver interface {
	GetByLinkID(ctx context.Context, linkID string) (*models.Opin, error)
}

// DetailsSource builds the result set of a loaded opin.
type DetailsSource interface {
	Details(ctx context.Context, o *models.Opin) (*models.VoteDetails, error)
}

// Client represents a single WebSocket connection watching an opin.
type Client struct {
	ID       string
	OpinID   uuid.UUID
	UserID   uuid.UUID
	JoinedAt time.Time
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// NewUpgrader returns a websocket upgrader accepting the given origins. A "*"
// entry or an empty list accepts every origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

// ServeWs handles GET /ws?link_id=...&token=... and streams live results for the opin.
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, authn Authenticator, links LinkResolver, details DetailsSource, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		linkID := c.Query("link_id")
		token := c.Query("token")
		if linkID == "" || token == "" {
			response.BadRequest(c, "link_id and token required")
			return
		}
		ctx := c.Request.Context()
		claims, err := authn.Authenticate(ctx, token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		o, err := links.GetByLinkID(ctx, linkID)
		if err != nil {
			middleware.Error(c, logger, err, "failed to load opin")
			return
		}
		d, err := details.Details(ctx, o)
		if err != nil {
			middleware.Error(c, logger, err, "failed to load results")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			OpinID:   o.ID,
			UserID:   claims.UserID,
			JoinedAt: time.Now(),
			hub:      hub,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		hub.SendToClient(o.ID, client.ID, EventSnapshot, Snapshot{
			OpinID:     o.ID,
			Status:     o.Status,
			Votes:      o.Votes,
			TotalVotes: d.TotalVotes,
		})
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				c.logger.Debug("websocket read", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "join":
			c.hub.BroadcastToOpin(c.OpinID, EventViewers, map[string]int{
				"count": c.hub.ViewerCount(c.OpinID),
			})
		default:
			// clients only listen
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
