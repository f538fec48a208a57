package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, false, nil)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	return r
}

func postJSON(r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestHandlerCookiePersistence(t *testing.T) {
	r := newTestRouter(newTestService())

	w := postJSON(r, "/auth/register", RegisterRequest{Email: "ada@example.com", Password: "secret1", KeepLoggedIn: true})
	require.Equal(t, http.StatusCreated, w.Code)
	c := sessionCookie(w)
	require.NotNil(t, c)
	require.Greater(t, c.MaxAge, 0)
	require.True(t, c.HttpOnly)

	w = postJSON(r, "/auth/login", LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	c = sessionCookie(w)
	require.NotNil(t, c)
	require.Zero(t, c.MaxAge)
}

func TestHandlerErrorCodes(t *testing.T) {
	r := newTestRouter(newTestService())

	w := postJSON(r, "/auth/register", RegisterRequest{Email: "ada@example.com", Password: "123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "auth/weak-password", body.Code)
	require.Equal(t, ErrWeakPassword.Message, body.Error)

	w = postJSON(r, "/auth/login", LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "auth/invalid-credential", body.Code)
}
