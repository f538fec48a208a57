package results

import (
	"bytes"
	"context"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/middleware"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/response"
)

// SheetsURLHeader carries the spreadsheet service to open after a CSV download.
const SheetsURLHeader = "X-Sheets-URL"

// LinkResolver finds the opin behind a share link.
type LinkResolver interface {
	GetByLinkID(ctx context.Context, linkID string) (*models.Opin, error)
}

// DetailsSource builds the result set of a loaded opin.
type DetailsSource interface {
	Details(ctx context.Context, o *models.Opin) (*models.VoteDetails, error)
}

// Handler serves the graph page data and its exports.
type Handler struct {
	links     LinkResolver
	details   DetailsSource
	scale     int
	sheetsURL string
	logger    *zap.Logger
}

// NewHandler creates a results handler. scale is the chart pixel density.
func NewHandler(links LinkResolver, details DetailsSource, scale int, sheetsURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scale < 1 {
		scale = 1
	}
	return &Handler{links: links, details: details, scale: scale, sheetsURL: sheetsURL, logger: logger}
}

// Get handles GET /graph/:linkId.
func (h *Handler) Get(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, d)
}

// Roster handles GET /graph/:linkId/roster. ?format=html returns the HTML fragment.
func (h *Handler) Roster(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	v := Roster(d)
	if c.Query("format") != "html" {
		response.OK(c, v)
		return
	}
	var buf bytes.Buffer
	if err := RenderRosterHTML(&buf, v); err != nil {
		middleware.Error(c, h.logger, err, "failed to render roster")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// ChartPNG handles GET /graph/:linkId/chart.png.
func (h *Handler) ChartPNG(c *gin.Context) { h.export(c, FormatPNG) }

// ChartJPEG handles GET /graph/:linkId/chart.jpg.
func (h *Handler) ChartJPEG(c *gin.Context) { h.export(c, FormatJPEG) }

// Spreadsheet handles GET /graph/:linkId/results.xlsx.
func (h *Handler) Spreadsheet(c *gin.Context) { h.export(c, FormatXLSX) }

// CSV handles GET /graph/:linkId/results.csv.
func (h *Handler) CSV(c *gin.Context) {
	if h.sheetsURL != "" {
		c.Header(SheetsURLHeader, h.sheetsURL)
	}
	h.export(c, FormatCSV)
}

func (h *Handler) export(c *gin.Context, f Format) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := Render(&buf, d, f, h.scale); err != nil {
		middleware.Error(c, h.logger, err, "failed to export results")
		return
	}
	c.Header("Content-Disposition", ContentDisposition(Filename(d.Opin, f)))
	c.Data(http.StatusOK, f.ContentType(), buf.Bytes())
}

func (h *Handler) load(c *gin.Context) (*models.VoteDetails, bool) {
	ctx := c.Request.Context()
	o, err := h.links.GetByLinkID(ctx, c.Param("linkId"))
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load opin")
		return nil, false
	}
	d, err := h.details.Details(ctx, o)
	if err != nil {
		middleware.Error(c, h.logger, err, "failed to load results")
		return nil, false
	}
	return d, true
}

// ContentDisposition returns an attachment header value for filename.
// Non-ASCII names are encoded per RFC 2231.
func ContentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
