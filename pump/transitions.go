package pump

import (
	"github.com/pkg/errors"
)

type event uint8

const (
	evCapture event = iota + 1
	evSendFailed
	evResolve
	evAdvanced
	evReset
)

func (e event) String() string {
	switch e {
	case evCapture:
		return "capture"
	case evSendFailed:
		return "send_failed"
	case evResolve:
		return "resolve"
	case evAdvanced:
		return "advanced"
	case evReset:
		return "reset"
	default:
		return "unknown"
	}
}

// transitions is the complete state table. Anything not listed is rejected.
var transitions = map[State]map[event]State{
	Idle: {
		evCapture: AwaitingResponse,
		evReset:   Idle,
	},
	AwaitingResponse: {
		evSendFailed: Idle,
		evResolve:    Advancing,
		evReset:      Idle,
	},
	Advancing: {
		evAdvanced: Idle,
		evReset:    Idle,
	},
}

func nextState(from State, ev event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, errors.Wrapf(ErrInvalidTransition, "event '%s' in state '%s'", ev, from)
	}
	return to, nil
}
