package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Duo/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrRoomFull, http.StatusConflict},
		{domain.ErrRoomExpired, http.StatusGone},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{domain.ErrChannelUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: r1", domain.ErrRoomFull), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(domain.Reason(tc.err), func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}
