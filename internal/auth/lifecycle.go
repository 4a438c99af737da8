package auth

import (
	"errors"
	"fmt"
)

// State is a device credential lifecycle state.
type State int

const (
	StateActive State = iota
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Usable reports whether a credential in this state may authenticate a request.
// Expired is effectively revoked.
func (s State) Usable() bool {
	return s == StateActive
}

// Event drives a lifecycle transition.
type Event int

const (
	// EventExpire marks that the expiry instant has passed.
	EventExpire Event = iota
	// EventRevoke is an explicit revocation, or the lazy revocation recorded
	// when an expired credential is first observed.
	EventRevoke
	// EventRefresh rotates the credential string and pushes out the expiry.
	EventRefresh
)

// ErrInvalidTransition reports a transition the lifecycle does not allow.
var ErrInvalidTransition = errors.New("auth: invalid credential transition")

// Transition returns the state reached by applying e to s.
//
//	active  --expire-->  expired
//	active  --revoke-->  revoked
//	expired --revoke-->  revoked
//	revoked --revoke-->  revoked   (idempotent)
//	active  --refresh--> active
//	expired --refresh--> active
func Transition(s State, e Event) (State, error) {
	switch e {
	case EventExpire:
		switch s {
		case StateActive, StateExpired:
			return StateExpired, nil
		case StateRevoked:
			return StateRevoked, nil
		}
	case EventRevoke:
		return StateRevoked, nil
	case EventRefresh:
		if s == StateRevoked {
			return s, ErrInvalidTransition
		}
		return StateActive, nil
	}
	return s, fmt.Errorf("%w: %v on %v", ErrInvalidTransition, e, s)
}
