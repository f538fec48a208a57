package opins

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestRouter(svc *Service, as *models.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if as != nil {
			claims := &auth.Claims{UserID: as.UserID, Email: as.Email}
			c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		}
		c.Next()
	})
	r.POST("/opins", h.Create)
	r.GET("/opins", h.List)
	r.GET("/opins/:id", h.Get)
	r.GET("/opins/:id/share", h.Share)
	r.POST("/opins/:id/pause", h.Pause)
	r.POST("/opins/:id/reactivate", h.Reactivate)
	r.POST("/opins/:id/end", h.End)
	return r
}

func do(r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHandlerCreateAndList(t *testing.T) {
	svc, _, _ := newTestService(t)
	me := creator()
	r := newTestRouter(svc, me)

	w, env := do(r, http.MethodPost, "/opins", CreateRequest{
		Name:      "Lunch",
		Question:  "Where do we eat?",
		Options:   []string{"Tacos", "Sushi"},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "https://opin.example.com/vote/"+created.LinkID, created.ShareURL)

	w, _ = do(r, http.MethodPost, "/opins/"+created.ID.String()+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(r, http.MethodGet, "/opins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Empty(t, list.Active)
	require.Len(t, list.Ended, 1)
	require.Equal(t, created.ID, list.Ended[0].ID)
}

func TestHandlerErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := creator()
	o, err := svc.Create(context.Background(), owner, validParams())
	require.NoError(t, err)

	anon := newTestRouter(svc, nil)
	w, env := do(anon, http.MethodPost, "/opins", CreateRequest{
		Name: "x", Question: "y", Options: []string{"a", "b"}, ExpiresAt: time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "unauthenticated", env.Code)

	stranger := newTestRouter(svc, creator())
	w, env = do(stranger, http.MethodPost, "/opins/"+o.ID.String()+"/pause", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", env.Code)

	mine := newTestRouter(svc, owner)
	w, env = do(mine, http.MethodPost, "/opins/"+o.ID.String()+"/reactivate", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_transition", env.Code)

	w, _ = do(mine, http.MethodGet, "/opins/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(mine, http.MethodPost, "/opins", CreateRequest{
		Name: "x", Question: "y", Options: []string{"only"}, ExpiresAt: time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_opin", env.Code)
}
