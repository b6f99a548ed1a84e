package signal

import (
	"context"

	"github.com/dkeye/Duo/internal/domain"
)

func (ctl *SignalWSController) handleWhoAmI(
	ctx context.Context,
	id domain.RoomID,
	token domain.Token,
	conn *WsSignalConn,
) {
	st, err := ctl.Orch.Status(ctx, id)
	if err != nil {
		_ = ctl.sendJSON(conn, errorFrame(err))
		return
	}
	resp := struct {
		Token       string `json:"token"`
		Room        string `json:"room"`
		State       string `json:"state"`
		RemainingMs int64  `json:"remainingMs"`
		Members     int    `json:"members"`
	}{
		Token:       token.Short(),
		Room:        string(id),
		State:       string(st.State),
		RemainingMs: st.Remaining.Milliseconds(),
		Members:     st.Meta.MemberCount(),
	}
	_ = ctl.sendJSON(conn, outFrame{Event: "whoami", Data: resp})
}
