package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// outFrame is every server-to-client message.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func errorFrame(err error) outFrame {
	return outFrame{Event: "error", Data: map[string]string{"reason": domain.Reason(err)}}
}

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, id domain.RoomID, token domain.Token, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(sid)
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, id, token, c, data)
	}
}

// forward turns room events into frames. A destroy event is the last frame
// the connection gets.
func (ctl *SignalWSController) forward(ctx context.Context, sid core.SessionID, events <-chan domain.Event, c *WsSignalConn) {
	defer c.Close()
	for ev := range events {
		if err := ctl.sendJSON(c, outFrame{Event: string(ev.Name()), Data: ev}); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("client lagging, closing stream")
			ctl.Orch.Disconnect(sid)
			return
		}
		if ev.Name() == domain.EventDestroy {
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("room destroyed, closing stream")
			return
		}
	}
	if ctx.Err() == nil {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("subscription ended")
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.RoomID, token domain.Token, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		_ = ctl.sendJSON(c, errorFrame(domain.ErrInvalidInput))
		return
	}

	switch env.Type {
	case "send":
		ctl.handleSend(ctx, id, token, c, data)
	case "ping":
		ctl.handlePing(c)
	case "history":
		ctl.handleHistory(ctx, id, token, c)
	case "whoami":
		ctl.handleWhoAmI(ctx, id, token, c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		_ = ctl.sendJSON(c, errorFrame(domain.ErrInvalidInput))
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return err
	}
	return c.TrySend(b)
}
