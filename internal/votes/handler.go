package votes

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/middleware"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/response"
)

// LinkResolver finds the opin behind a share link.
type LinkResolver interface {
	GetByLinkID(ctx context.Context, linkID string) (*models.Opin, error)
}

// SubmitRequest is the body for POST /vote/:linkId.
type SubmitRequest struct {
	SelectedOptions []int `json:"selected_options"`
}

// VoteView is the voting page state for GET /vote/:linkId.
type VoteView struct {
	Opin     *models.Opin `json:"opin"`
	HasVoted bool         `json:"has_voted"`
}

// Handler handles the voting endpoints.
type Handler struct {
	svc    *Service
	links  LinkResolver
	logger *zap.Logger
}

// NewHandler creates a votes handler.
func NewHandler(svc *Service, links LinkResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, links: links, logger: logger}
}

// Get handles GET /vote/:linkId.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.links.GetByLinkID(ctx, c.Param("linkId"))
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opin")
		return
	}
	voted, err := h.svc.HasVoted(ctx, auth.CurrentUser(ctx), o.ID)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load ballot")
		return
	}
	response.OK(c, VoteView{Opin: o, HasVoted: voted})
}

// Submit handles POST /vote/:linkId.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	o, err := h.links.GetByLinkID(ctx, c.Param("linkId"))
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opin")
		return
	}
	v, err := h.svc.Submit(ctx, auth.CurrentUser(ctx), o.ID, req.SelectedOptions)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to submit vote")
		return
	}
	response.Created(c, v)
}
