package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrNotAuthenticated is returned by Authorize for an anonymous session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden is returned by Authorize when the session role does not match.
	ErrForbidden = errors.New("insufficient role")

	// ErrNoSession is returned when an operation needs a session and none was given.
	ErrNoSession = errors.New("no session")

	// ErrSSOStateMismatch is returned when an SSO callback state does not match
	// the state recorded in the session.
	ErrSSOStateMismatch = errors.New("sso state mismatch")
)
