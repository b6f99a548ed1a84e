package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/app/orch"
	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

type Options struct {
	PingPeriod time.Duration
	ReadLimit  int64
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	opts    Options
	// ctx outlives single requests; the socket is hijacked before the
	// handler returns.
	ctx context.Context
}

func NewSignalWSController(ctx context.Context, o *orch.Orchestrator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 8 << 10
	}
	return &SignalWSController{Orch: o, Limiter: limiter, opts: opts, ctx: ctx}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, sendBuffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is already
// queued and then closes the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionToken returns the participant token bound to the caller's cookie
// for this room.
func SessionToken(c *gin.Context, id domain.RoomID) (domain.Token, bool) {
	s := sessions.Default(c)
	room, _ := s.Get("room").(string)
	token, _ := s.Get("token").(string)
	if token == "" || room != string(id) {
		return "", false
	}
	return domain.Token(token), true
}

func (ctl *SignalWSController) HandleStream(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.Reason(err)})
		return
	}
	names, err := domain.ParseEventNames(c.Query("events"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.Reason(err)})
		return
	}
	token, ok := SessionToken(c, id)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": domain.Reason(domain.ErrUnauthorized)})
		return
	}

	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)
	conn := newWsSignalConn(ws)

	ctx, sub, err := ctl.Orch.Connect(ctl.ctx, sid, id, token, conn, names)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("stream rejected")
		ctl.rejectAndClose(ws, err)
		return
	}

	// history first; live events wait in the subscription buffer
	ctl.handleHistory(ctx, id, token, conn)

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, sid, id, token, conn)
	go ctl.forward(ctx, sid, sub.Events(), conn)
}

func (ctl *SignalWSController) rejectAndClose(ws *websocket.Conn, err error) {
	defer ws.Close()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(errorFrame(err)); err != nil {
		return
	}
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, domain.Reason(err)))
}
