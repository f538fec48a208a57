package opins

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/middleware"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/response"
)

// CreateRequest is the body for POST /opins.
type CreateRequest struct {
	Name          string    `json:"name" binding:"required"`
	Question      string    `json:"question" binding:"required"`
	Options       []string  `json:"options" binding:"required"`
	ExpiresAt     time.Time `json:"expires_at" binding:"required"`
	MultiSelect   bool      `json:"multi_select"`
	MaxSelections int       `json:"max_selections"`
	Anonymous     bool      `json:"anonymous"`
}

// CreateResponse is returned by POST /opins.
type CreateResponse struct {
	ID       uuid.UUID    `json:"id"`
	LinkID   string       `json:"link_id"`
	ShareURL string       `json:"share_url"`
	GraphURL string       `json:"graph_url"`
	Opin     *models.Opin `json:"opin"`
}

// Summary is an opin as listed on the dashboard.
type Summary struct {
	models.Opin
	TotalSelections int    `json:"total_selections"`
	ShareURL        string `json:"share_url"`
	GraphURL        string `json:"graph_url"`
}

// ListResponse groups the caller's opins the way the dashboard shows them.
type ListResponse struct {
	Active []Summary `json:"active"`
	Ended  []Summary `json:"ended"`
}

// Handler handles opin HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an opins handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /opins.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	o, err := h.svc.Create(c.Request.Context(), auth.CurrentUser(c.Request.Context()), CreateParams{
		Name:          req.Name,
		Question:      req.Question,
		Options:       req.Options,
		ExpiresAt:     req.ExpiresAt,
		MultiSelect:   req.MultiSelect,
		MaxSelections: req.MaxSelections,
		Anonymous:     req.Anonymous,
	})
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to create opin")
		return
	}
	response.Created(c, CreateResponse{
		ID:       o.ID,
		LinkID:   o.LinkID,
		ShareURL: h.svc.ShareURL(o.LinkID),
		GraphURL: h.svc.GraphShareURL(o.LinkID),
		Opin:     o,
	})
}

// List handles GET /opins. Expired opins are ended before listing.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	caller := auth.CurrentUser(ctx)
	if _, err := h.svc.SweepExpired(ctx, caller); err != nil {
		h.logger.Warn("sweep before list", zap.Error(err))
	}
	list, err := h.svc.ListMine(ctx, caller)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opins")
		return
	}
	out := ListResponse{Active: []Summary{}, Ended: []Summary{}}
	for _, o := range list {
		s := h.summary(o)
		if o.Status == models.StatusEnded {
			out.Ended = append(out.Ended, s)
		} else {
			out.Active = append(out.Active, s)
		}
	}
	response.OK(c, out)
}

// Get handles GET /opins/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	o, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opin")
		return
	}
	response.OK(c, h.summary(*o))
}

// Share handles GET /opins/:id/share.
func (h *Handler) Share(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	o, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opin")
		return
	}
	response.OK(c, gin.H{
		"link_id":   o.LinkID,
		"share_url": h.svc.ShareURL(o.LinkID),
		"graph_url": h.svc.GraphShareURL(o.LinkID),
	})
}

// Pause handles POST /opins/:id/pause.
func (h *Handler) Pause(c *gin.Context) { h.transition(c, h.svc.Pause, "failed to pause opin") }

// Reactivate handles POST /opins/:id/reactivate.
func (h *Handler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate, "failed to reactivate opin")
}

// End handles POST /opins/:id/end.
func (h *Handler) End(c *gin.Context) { h.transition(c, h.svc.End, "failed to end opin") }

type transitionFunc func(ctx context.Context, caller *models.Identity, id uuid.UUID) (*models.Opin, error)

func (h *Handler) transition(c *gin.Context, fn transitionFunc, fallback string) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	o, err := fn(c.Request.Context(), auth.CurrentUser(c.Request.Context()), id)
	if err != nil {
		middleware.Error(c, h.logger, err, fallback)
		return
	}
	response.OK(c, gin.H{"id": o.ID, "status": o.Status})
}

func (h *Handler) summary(o models.Opin) Summary {
	return Summary{
		Opin:            o,
		TotalSelections: o.Votes.Sum(),
		ShareURL:        h.svc.ShareURL(o.LinkID),
		GraphURL:        h.svc.GraphShareURL(o.LinkID),
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid opin id")
		return uuid.Nil, false
	}
	return id, true
}
