// Package exports serves asynchronous result exports: the creator requests an
// artifact, the worker renders it to S3, and the creator downloads it through
// a pre-signed URL.
package exports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/middleware"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/internal/results"
	"github.com/opin-voting/backend/pkg/queue"
	"github.com/opin-voting/backend/pkg/response"
	"github.com/opin-voting/backend/pkg/storage"
)

// OpinReader loads an opin by ID.
type OpinReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Opin, error)
}

// Enqueuer schedules export jobs.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, payload queue.ExportPayload) (string, error)
}

// Locator finds rendered exports and signs download URLs.
type Locator interface {
	Exists(ctx context.Context, key string) (time.Time, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// Request is the body for POST /opins/:id/exports.
type Request struct {
	Format string `json:"format" binding:"required"`
}

// Download describes a ready export.
type Download struct {
	Format      results.Format `json:"format"`
	URL         string         `json:"url"`
	GeneratedAt time.Time      `json:"generated_at"`
	ExpiresIn   int            `json:"expires_in"`
}

// Handler handles export endpoints. A nil queue or locator disables them.
type Handler struct {
	opins   OpinReader
	queue   Enqueuer
	locator Locator
	logger  *zap.Logger
}

// NewHandler creates an exports handler.
func NewHandler(opins OpinReader, q Enqueuer, locator Locator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{opins: opins, queue: q, locator: locator, logger: logger}
}

// Request handles POST /opins/:id/exports.
func (h *Handler) Request(c *gin.Context) {
	if h.queue == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	format, err := results.ParseFormat(req.Format)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, caller, ok := h.owned(c)
	if !ok {
		return
	}
	jobID, err := h.queue.EnqueueExport(c.Request.Context(), queue.ExportPayload{
		OpinID:      o.ID,
		Format:      string(format),
		RequestedBy: caller.UserID,
	})
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to enqueue export")
		return
	}
	h.logger.Info("export requested",
		zap.String("opin_id", o.ID.String()),
		zap.String("format", string(format)),
		zap.String("job_id", jobID))
	response.Accepted(c, gin.H{"job_id": jobID, "format": format})
}

// Download handles GET /opins/:id/exports/:format.
func (h *Handler) Download(c *gin.Context) {
	if h.locator == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	format, err := results.ParseFormat(c.Param("format"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, _, ok := h.owned(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := storage.ExportKey(o.ID.String(), string(format))
	generatedAt, err := h.locator.Exists(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		response.Fail(c, http.StatusNotFound, "export_pending", "export is not ready")
		return
	}
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to look up export")
		return
	}
	url, err := h.locator.PresignDownload(ctx, key)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to sign export url")
		return
	}
	response.OK(c, Download{
		Format:      format,
		URL:         url,
		GeneratedAt: generatedAt,
		ExpiresIn:   int(h.locator.PresignExpire().Seconds()),
	})
}

func (h *Handler) owned(c *gin.Context) (*models.Opin, *models.Identity, bool) {
	caller := auth.CurrentUser(c.Request.Context())
	if caller == nil {
		middleware.Error(c, h.logger, models.ErrUnauthenticated, "")
		return nil, nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid opin id")
		return nil, nil, false
	}
	o, err := h.opins.GetByID(c.Request.Context(), id)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opin")
		return nil, nil, false
	}
	if !o.IsOwnedBy(caller) {
		middleware.Error(c, h.logger, models.ErrForbidden, "")
		return nil, nil, false
	}
	return o, caller, true
}
