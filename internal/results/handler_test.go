package results

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opin-voting/backend/internal/memstore"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/internal/opins"
	"github.com/opin-voting/backend/internal/votes"
)

func newGraphRouter(t *testing.T) (*gin.Engine, *models.Opin) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := memstore.New()
	opinSvc := opins.NewService(store, "https://opin.example.com", nil)
	voteSvc := votes.NewService(store, store, nil)

	owner := &models.Identity{UserID: uuid.New(), Email: "owner@example.com"}
	o, err := opinSvc.Create(ctx, owner, opins.CreateParams{
		Name:      "Letters",
		Question:  "Pick a letter",
		Options:   []string{"A", "B", "C"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	for _, email := range []string{"x@example.com", "y@example.com"} {
		_, err := voteSvc.Submit(ctx, &models.Identity{UserID: uuid.New(), Email: email}, o.ID, []int{1})
		require.NoError(t, err)
	}

	h := NewHandler(opinSvc, voteSvc, 1, "https://sheets.google.com", nil)
	r := gin.New()
	r.GET("/graph/:linkId", h.Get)
	r.GET("/graph/:linkId/roster", h.Roster)
	r.GET("/graph/:linkId/chart.png", h.ChartPNG)
	r.GET("/graph/:linkId/chart.jpg", h.ChartJPEG)
	r.GET("/graph/:linkId/results.xlsx", h.Spreadsheet)
	r.GET("/graph/:linkId/results.csv", h.CSV)
	return r, o
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandlerDetails(t *testing.T) {
	r, o := newGraphRouter(t)

	w := get(r, "/graph/"+o.LinkID)
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data models.VoteDetails `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, 2, env.Data.TotalVotes)
	require.Equal(t, 2, env.Data.Options[1].Count)

	w = get(r, "/graph/zzzzzzzz")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerExports(t *testing.T) {
	r, o := newGraphRouter(t)

	w := get(r, "/graph/"+o.LinkID+"/results.csv")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://sheets.google.com", w.Header().Get(SheetsURLHeader))
	require.Equal(t, `attachment; filename=Letters-results.csv`, w.Header().Get("Content-Disposition"))
	require.Contains(t, w.Body.String(), "\"B\",2,100.0%\n")

	w = get(r, "/graph/"+o.LinkID+"/chart.png")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename=Letters.png`, w.Header().Get("Content-Disposition"))

	w = get(r, "/graph/"+o.LinkID+"/chart.jpg")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = get(r, "/graph/"+o.LinkID+"/results.xlsx")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, FormatXLSX.ContentType(), w.Header().Get("Content-Type"))

	w = get(r, "/graph/"+o.LinkID+"/roster?format=html")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<summary>B (2)</summary>")
}
