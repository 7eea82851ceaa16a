package consts

import "errors"

var (
	// ErrMalformedCredentials is returned when an Authorization header value
	// cannot be decoded into a username/password pair.
	ErrMalformedCredentials = errors.New("malformed credentials")

	// ErrAuthenticationRejected is returned when the backend refuses a login.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrConnectionFailed is returned when the backend cannot be reached or
	// the TLS handshake fails.
	ErrConnectionFailed = errors.New("backend connection failed")

	// ErrNoSessionFound is returned when a session id has no cached backend
	// connection. Seeing it after a successful authentication indicates an
	// internal consistency problem.
	ErrNoSessionFound = errors.New("no backend session found for session id")
)
