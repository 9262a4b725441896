package pump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	allowed := []struct {
		from State
		ev   event
		to   State
	}{
		{Idle, evCapture, AwaitingResponse},
		{Idle, evReset, Idle},
		{AwaitingResponse, evResolve, Advancing},
		{AwaitingResponse, evSendFailed, Idle},
		{AwaitingResponse, evReset, Idle},
		{Advancing, evAdvanced, Idle},
		{Advancing, evReset, Idle},
	}
	for _, tt := range allowed {
		to, err := nextState(tt.from, tt.ev)
		require.NoError(t, err, "%s on %s", tt.ev, tt.from)
		assert.Equal(t, tt.to, to, "%s on %s", tt.ev, tt.from)
	}

	rejected := []struct {
		from State
		ev   event
	}{
		{Idle, evResolve},
		{Idle, evAdvanced},
		{Idle, evSendFailed},
		{AwaitingResponse, evCapture},
		{AwaitingResponse, evAdvanced},
		{Advancing, evCapture},
		{Advancing, evResolve},
	}
	for _, tt := range rejected {
		to, err := nextState(tt.from, tt.ev)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", tt.ev, tt.from)
		assert.Equal(t, tt.from, to)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "awaiting_response", AwaitingResponse.String())
	assert.Equal(t, "advancing", Advancing.String())
}
