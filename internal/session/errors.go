package session

import "errors"

var (
	// ErrNotFound is returned by stores when no value exists for an id.
	ErrNotFound = errors.New("session not found")

	// ErrCorruptPayload indicates a stored value is not a JSON object.
	ErrCorruptPayload = errors.New("session payload is not a JSON object")

	// ErrInvalidValue is returned when a session is assigned something other
	// than nil or an object-shaped value.
	ErrInvalidValue = errors.New("session can only be set to nil or an object-shaped value")

	// ErrNoState is returned by the context helpers outside the session middleware.
	ErrNoState = errors.New("session middleware is not installed")

	ErrIDGeneration        = errors.New("failed to generate session id")
	ErrUnsupportedProvider = errors.New("unsupported session store provider")
)
