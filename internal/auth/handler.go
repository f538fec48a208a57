package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/pkg/response"
)

// SessionCookie is the cookie carrying the token for browser clients.
const SessionCookie = "opin_session"

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	KeepLoggedIn bool   `json:"keep_logged_in"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	KeepLoggedIn bool   `json:"keep_logged_in"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	svc          *Service
	secureCookie bool
	logger       *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service, secureCookie bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, secureCookie: secureCookie, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess, err := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.KeepLoggedIn)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, sess)
	response.Created(c, sess)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, req.KeepLoggedIn)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookie(c, sess)
	response.OK(c, sess)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), ClaimsFrom(c.Request.Context())); err != nil {
		h.logger.Error("logout", zap.Error(err))
		response.Internal(c, "failed to log out")
		return
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", h.secureCookie, true)
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	user := CurrentUser(c.Request.Context())
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, "unauthenticated", "not signed in")
		return
	}
	response.OK(c, user)
}

// setCookie stores the token in a cookie. Session persistence omits Max-Age so
// the browser drops it on exit.
func (h *Handler) setCookie(c *gin.Context, sess *Session) {
	maxAge := 0
	if sess.Persistence == PersistenceLocal {
		maxAge = int(time.Until(sess.ExpiresAt).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.Token, maxAge, "/", "", h.secureCookie, true)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code, msg := Describe(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("auth", zap.Error(err))
	}
	response.Fail(c, status, code, msg)
}
