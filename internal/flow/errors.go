package flow

import "errors"

var (
	// ErrMissingParameter is returned when the callback lacks code or state
	ErrMissingParameter = errors.New("missing callback parameter")

	// ErrStateMismatch is returned when the flow cookie is absent, forged,
	// expired, or names a different state than the callback
	ErrStateMismatch = errors.New("state does not match the flow started by this browser")

	// ErrUnknownState is returned when no live pending flow exists for the
	// state, because it expired or was already used
	ErrUnknownState = errors.New("unknown or expired state")

	// ErrExchange wraps failures talking to the token endpoint
	ErrExchange = errors.New("token exchange failed")
)
