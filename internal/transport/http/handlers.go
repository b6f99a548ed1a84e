// Package http holds the JSON handlers of the room API.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/domain"
)

// Rooms is what the handlers need from the orchestrator.
type Rooms interface {
	CreateRoom(ctx context.Context) (app.RoomStatus, error)
	Join(ctx context.Context, id domain.RoomID, existing domain.Token) (domain.Admission, error)
	Status(ctx context.Context, id domain.RoomID) (app.RoomStatus, error)
	Send(ctx context.Context, id domain.RoomID, sender domain.Token, text string) (domain.Message, error)
	History(ctx context.Context, id domain.RoomID, reader domain.Token) ([]domain.Message, error)
	Ready(ctx context.Context) error
}

// Limiter bounds sends per participant.
type Limiter interface {
	Allow(token domain.Token) bool
}

type CookieOptions struct {
	Lifetime time.Duration
	Secure   bool
}

type Handlers struct {
	rooms   Rooms
	limiter Limiter
	cookie  CookieOptions
}

func NewHandlers(rooms Rooms, limiter Limiter, cookie CookieOptions) *Handlers {
	return &Handlers{rooms: rooms, limiter: limiter, cookie: cookie}
}

type CreateRoomResponse struct {
	RoomID      domain.RoomID `json:"roomId"`
	ExpiresInMs int64         `json:"expiresInMs"`
}

type JoinResponse struct {
	RoomID      domain.RoomID          `json:"roomId"`
	Status      domain.AdmissionStatus `json:"status"`
	ExpiresInMs int64                  `json:"expiresInMs"`
	Members     int                    `json:"members"`
}

type StatusResponse struct {
	RoomID      domain.RoomID `json:"roomId"`
	State       app.RoomState `json:"state"`
	RemainingMs int64         `json:"remainingMs"`
	Members     int           `json:"members"`
}

type SendRequest struct {
	Text string `json:"text" binding:"required"`
}

// StatusFor maps a core error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomFull):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRoomExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "transport.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": domain.Reason(err)})
}

func roomParam(c *gin.Context) (domain.RoomID, bool) {
	id, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		fail(c, err)
		return "", false
	}
	return id, true
}

// sessionToken is the caller's token for this room, if its cookie has one.
func sessionToken(c *gin.Context, id domain.RoomID) domain.Token {
	s := sessions.Default(c)
	room, _ := s.Get("room").(string)
	token, _ := s.Get("token").(string)
	if room != string(id) {
		return ""
	}
	return domain.Token(token)
}

func (h *Handlers) requireToken(c *gin.Context, id domain.RoomID) (domain.Token, bool) {
	token := sessionToken(c, id)
	if token == "" {
		fail(c, domain.ErrUnauthorized)
		return "", false
	}
	return token, true
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	st, err := h.rooms.CreateRoom(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateRoomResponse{RoomID: st.Meta.ID, ExpiresInMs: st.Remaining.Milliseconds()})
}

func (h *Handlers) Join(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	adm, err := h.rooms.Join(c.Request.Context(), id, sessionToken(c, id))
	if err != nil {
		fail(c, err)
		return
	}

	s := sessions.Default(c)
	s.Options(sessions.Options{
		Path:     "/api/rooms/" + string(id),
		MaxAge:   int(h.cookie.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	s.Set("room", string(id))
	s.Set("token", string(adm.Token))
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "transport.http").Str("room", string(id)).Msg("save session")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, JoinResponse{
		RoomID:      id,
		Status:      adm.Status,
		ExpiresInMs: adm.Room.TTL.Milliseconds(),
		Members:     adm.Room.MemberCount(),
	})
}

func (h *Handlers) Status(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	st, err := h.rooms.Status(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		RoomID:      id,
		State:       st.State,
		RemainingMs: st.Remaining.Milliseconds(),
		Members:     st.Meta.MemberCount(),
	})
}

func (h *Handlers) Send(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	token, ok := h.requireToken(c, id)
	if !ok {
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, domain.ErrInvalidInput)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(token) {
		fail(c, domain.ErrRateLimited)
		return
	}
	msg, err := h.rooms.Send(c.Request.Context(), id, token, req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handlers) History(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	token, ok := h.requireToken(c, id)
	if !ok {
		return
	}
	msgs, err := h.rooms.History(c.Request.Context(), id, token)
	if err != nil {
		fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.rooms.Ready(ctx); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Msg("not ready")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": domain.Reason(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
