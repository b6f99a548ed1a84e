package signal

import (
	"context"

	"github.com/dkeye/Duo/internal/domain"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	_ = ctl.sendJSON(conn, outFrame{Event: "pong"})
}

func (ctl *SignalWSController) handleHistory(ctx context.Context, id domain.RoomID, token domain.Token, conn *WsSignalConn) {
	msgs, err := ctl.Orch.History(ctx, id, token)
	if err != nil {
		_ = ctl.sendJSON(conn, errorFrame(err))
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	_ = ctl.sendJSON(conn, outFrame{Event: "history", Data: msgs})
}
