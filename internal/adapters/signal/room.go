package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/domain"
)

// handleSend posts a message from the stream. The sender sees its own
// message through the broadcast like everyone else; only failures are
// answered directly.
func (ctl *SignalWSController) handleSend(
	ctx context.Context,
	id domain.RoomID,
	token domain.Token,
	conn *WsSignalConn,
	data []byte,
) {
	type sendPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad send payload")
		_ = ctl.sendJSON(conn, errorFrame(domain.ErrInvalidInput))
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(token) {
		_ = ctl.sendJSON(conn, errorFrame(domain.ErrRateLimited))
		return
	}
	if _, err := ctl.Orch.Send(ctx, id, token, p.Text); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("room", string(id)).Msg("send rejected")
		_ = ctl.sendJSON(conn, errorFrame(err))
	}
}
