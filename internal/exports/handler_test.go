package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opin-voting/backend/internal/auth"
	"github.com/opin-voting/backend/internal/memstore"
	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/queue"
	"github.com/opin-voting/backend/pkg/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type fakeQueue struct {
	payloads []queue.ExportPayload
	err      error
}

func (q *fakeQueue) EnqueueExport(_ context.Context, p queue.ExportPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return "job-1", nil
}

type fakeLocator struct {
	objects map[string]time.Time
}

func (l *fakeLocator) Exists(_ context.Context, key string) (time.Time, error) {
	at, ok := l.objects[key]
	if !ok {
		return time.Time{}, storage.ErrObjectNotFound
	}
	return at, nil
}

func (l *fakeLocator) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://bucket.example.com/" + key + "?sig=1", nil
}

func (l *fakeLocator) PresignExpire() time.Duration { return 15 * time.Minute }

type fixture struct {
	opin  *models.Opin
	owner *models.Identity
	store *memstore.Store
}

func newFixture() fixture {
	owner := &models.Identity{UserID: uuid.New(), Email: "owner@example.com"}
	st := memstore.New()
	o := &models.Opin{Name: "Letters", Options: []string{"A", "B"}, Status: models.StatusEnded, CreatorID: owner.UserID}
	st.Put(o)
	return fixture{opin: o, owner: owner, store: st}
}

func router(h *Handler, as *models.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if as != nil {
			claims := &auth.Claims{UserID: as.UserID, Email: as.Email}
			c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		}
		c.Next()
	})
	r.POST("/opins/:id/exports", h.Request)
	r.GET("/opins/:id/exports/:format", h.Download)
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

func TestRequestEnqueuesExport(t *testing.T) {
	f := newFixture()
	q := &fakeQueue{}
	r := router(NewHandler(f.store, q, &fakeLocator{}, nil), f.owner)

	w, env := do(r, http.MethodPost, "/opins/"+f.opin.ID.String()+"/exports", Request{Format: "jpeg"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.True(t, env.Success)
	require.Len(t, q.payloads, 1)
	require.Equal(t, f.opin.ID, q.payloads[0].OpinID)
	require.Equal(t, "jpg", q.payloads[0].Format)
	require.Equal(t, f.owner.UserID, q.payloads[0].RequestedBy)
}

func TestRequestRejects(t *testing.T) {
	f := newFixture()
	q := &fakeQueue{}
	path := "/opins/" + f.opin.ID.String() + "/exports"

	w, _ := do(router(NewHandler(f.store, q, nil, nil), f.owner), http.MethodPost, path, Request{Format: "gif"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	stranger := &models.Identity{UserID: uuid.New()}
	w, env := do(router(NewHandler(f.store, q, nil, nil), stranger), http.MethodPost, path, Request{Format: "csv"})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", env.Code)

	w, env = do(router(NewHandler(f.store, q, nil, nil), nil), http.MethodPost, path, Request{Format: "csv"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "unauthenticated", env.Code)

	w, _ = do(router(NewHandler(f.store, nil, nil, nil), f.owner), http.MethodPost, path, Request{Format: "csv"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing := &fakeQueue{err: errors.New("redis down")}
	w, env = do(router(NewHandler(f.store, failing, nil, nil), f.owner), http.MethodPost, path, Request{Format: "csv"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "failed to enqueue export", env.Error)

	require.Empty(t, q.payloads)
}

func TestDownload(t *testing.T) {
	f := newFixture()
	generated := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	loc := &fakeLocator{objects: map[string]time.Time{
		storage.ExportKey(f.opin.ID.String(), "xlsx"): generated,
	}}
	r := router(NewHandler(f.store, nil, loc, nil), f.owner)

	w, env := do(r, http.MethodGet, "/opins/"+f.opin.ID.String()+"/exports/xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d Download
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, "https://bucket.example.com/exports/"+f.opin.ID.String()+"/results.xlsx?sig=1", d.URL)
	require.True(t, generated.Equal(d.GeneratedAt))
	require.Equal(t, 900, d.ExpiresIn)

	w, env = do(r, http.MethodGet, "/opins/"+f.opin.ID.String()+"/exports/csv", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "export_pending", env.Code)

	w, _ = do(r, http.MethodGet, "/opins/"+uuid.NewString()+"/exports/csv", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(router(NewHandler(f.store, nil, nil, nil), f.owner), http.MethodGet, "/opins/"+f.opin.ID.String()+"/exports/csv", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
