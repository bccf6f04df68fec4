package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUserNotFound, http.StatusNotFound},
		{fmt.Errorf("complete challenge: %w", ErrChallengeNotFound), http.StatusNotFound},
		{ErrChallengeInactive, http.StatusBadRequest},
		{ErrAlreadyReferred, http.StatusConflict},
		{ErrTeamFull, http.StatusConflict},
		{ErrCosmeticNotOwned, http.StatusForbidden},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
